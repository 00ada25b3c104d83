// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/imu_buffer_bridge/internal/bridge"
	"github.com/relabs-tech/imu_buffer_bridge/internal/regmap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// consoleTimeout bounds how long a request waits for the dispatcher.
const consoleTimeout = 2 * time.Second

// ConsoleResponse is one reply on the register console socket.
type ConsoleResponse struct {
	Type        string                `json:"type"` // "register_data", "register_page", "register_map", "config", "stats", "status", "error"
	Page        string                `json:"page,omitempty"`
	Address     string                `json:"addr,omitempty"`
	Value       string                `json:"value,omitempty"`
	Registers   map[string]string     `json:"registers,omitempty"` // hex address -> hex value
	RegisterMap []regmap.RegisterInfo `json:"register_map,omitempty"`
	Config      map[string]uint16     `json:"config,omitempty"`
	Stats       *bridge.Stats         `json:"stats,omitempty"`
	Message     string                `json:"message,omitempty"`
	Timestamp   string                `json:"timestamp,omitempty"`
}

type consoleRequest struct {
	msg   map[string]interface{}
	reply chan ConsoleResponse
}

// RegisterConsole is the master-side register console served over a
// WebSocket. Requests are queued and executed by the dispatcher through
// Service, so they interleave with SPI master traffic the same way the
// serial CLI does.
type RegisterConsole struct {
	reqs chan consoleRequest
}

// NewRegisterConsole returns an idle console.
func NewRegisterConsole() *RegisterConsole {
	return &RegisterConsole{reqs: make(chan consoleRequest, 16)}
}

// Service runs every queued request.
func (c *RegisterConsole) Service(d *bridge.Dispatcher) {
	for {
		select {
		case req := <-c.reqs:
			req.reply <- c.handle(d, req.msg)
		default:
			return
		}
	}
}

// Do queues msg and waits for the dispatcher to answer it.
func (c *RegisterConsole) Do(ctx context.Context, msg map[string]interface{}) (ConsoleResponse, error) {
	req := consoleRequest{msg: msg, reply: make(chan ConsoleResponse, 1)}
	select {
	case c.reqs <- req:
	case <-ctx.Done():
		return ConsoleResponse{}, ctx.Err()
	}
	select {
	case resp := <-req.reply:
		return resp, nil
	case <-ctx.Done():
		return ConsoleResponse{}, ctx.Err()
	}
}

// ServeHTTP upgrades to a WebSocket and answers JSON requests until the
// peer goes away.
func (c *RegisterConsole) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("register_console: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	for {
		var rawMsg map[string]interface{}
		if err := conn.ReadJSON(&rawMsg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("register_console: websocket error: %v", err)
			}
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), consoleTimeout)
		resp, err := c.Do(ctx, rawMsg)
		cancel()
		if errors.Is(err, context.DeadlineExceeded) {
			resp = errorResponse("dispatcher did not answer")
		} else if err != nil {
			return
		}
		if err := conn.WriteJSON(resp); err != nil {
			log.Printf("register_console: write error: %v", err)
			return
		}
	}
}

func errorResponse(msg string) ConsoleResponse {
	return ConsoleResponse{Type: "error", Message: msg, Timestamp: time.Now().Format(time.RFC3339)}
}

// hexByte parses a "0x.." string field of msg.
func hexByte(msg map[string]interface{}, key string) (uint8, error) {
	s, _ := msg[key].(string)
	if s == "" {
		return 0, fmt.Errorf("missing %s field", key)
	}
	var v uint16
	if _, err := fmt.Sscanf(s, "0x%X", &v); err != nil || v > 0xFF {
		return 0, fmt.Errorf("invalid %s format: %s", key, s)
	}
	return uint8(v), nil
}

func (c *RegisterConsole) handle(d *bridge.Dispatcher, msg map[string]interface{}) ConsoleResponse {
	action, ok := msg["action"].(string)
	if !ok {
		return errorResponse("missing or invalid action field")
	}
	regs := d.Device().Regs
	now := time.Now().Format(time.RFC3339)

	switch action {
	case "get_map":
		return ConsoleResponse{Type: "register_map", RegisterMap: regmap.Info(), Timestamp: now}

	case "select_page":
		page, err := hexByte(msg, "page")
		if err != nil {
			return errorResponse(err.Error())
		}
		regs.Write(0, page)
		return ConsoleResponse{Type: "status", Page: fmt.Sprintf("0x%02X", page), Message: "page selected", Timestamp: now}

	case "read":
		addr, err := hexByte(msg, "addr")
		if err != nil {
			return errorResponse(err.Error())
		}
		return ConsoleResponse{
			Type:      "register_data",
			Page:      fmt.Sprintf("0x%02X", regs.Page()),
			Address:   fmt.Sprintf("0x%02X", addr),
			Value:     fmt.Sprintf("0x%04X", regs.Read(addr)),
			Timestamp: now,
		}

	case "write":
		addr, err := hexByte(msg, "addr")
		if err != nil {
			return errorResponse(err.Error())
		}
		value, err := hexByte(msg, "value")
		if err != nil {
			return errorResponse(err.Error())
		}
		back := regs.Write(addr, value)
		return ConsoleResponse{
			Type:      "register_data",
			Page:      fmt.Sprintf("0x%02X", regs.Page()),
			Address:   fmt.Sprintf("0x%02X", addr),
			Value:     fmt.Sprintf("0x%04X", back),
			Timestamp: now,
		}

	case "read_page":
		return c.readPage(d, now)

	case "export_config":
		return ConsoleResponse{Type: "config", Config: regs.Snapshot(), Timestamp: now}

	case "command":
		value, _ := msg["value"].(string)
		var bits uint16
		if _, err := fmt.Sscanf(value, "0x%X", &bits); err != nil {
			return errorResponse(fmt.Sprintf("invalid value format: %s", value))
		}
		d.Submit(bits)
		return ConsoleResponse{Type: "status", Value: fmt.Sprintf("0x%04X", bits), Message: "command queued", Timestamp: now}

	case "stats":
		st := d.Stats()
		return ConsoleResponse{Type: "stats", Stats: &st, Timestamp: now}
	}
	return errorResponse(fmt.Sprintf("unknown action: %s", action))
}

// readPage dumps every register on the selected page. Local pages are
// peeked so retrieve and status keep their read side effects for the
// master; IMU pages are read through.
func (c *RegisterConsole) readPage(d *bridge.Dispatcher, now string) ConsoleResponse {
	regs := d.Device().Regs
	page := regs.Page()
	out := make(map[string]string, regmap.RegsPerPage)
	for i := 0; i < regmap.RegsPerPage; i++ {
		addr := uint8(i * 2)
		var v uint16
		if page >= regmap.PageBoundary {
			v, _ = regs.Peek(page, addr)
		} else {
			v = regs.Read(addr)
		}
		out[fmt.Sprintf("0x%02X", addr)] = fmt.Sprintf("0x%04X", v)
	}
	return ConsoleResponse{Type: "register_page", Page: fmt.Sprintf("0x%02X", page), Registers: out, Timestamp: now}
}
