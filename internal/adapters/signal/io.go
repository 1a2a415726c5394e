package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parlor/internal/app/orch"
	"github.com/dkeye/Parlor/internal/domain"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping failed")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, sid domain.ParticipantID, c *WsSignalConn) {
	limiter := ctl.limits.Acquire(sid)
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.limits.Release(sid)
		c.Close()
		_ = c.conn.Close()
		if err := ctl.Orch.Submit(ctx, sid, orch.Disconnect{Conn: c}); err != nil {
			log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("disconnect not delivered")
		}
	}()

	pongWait := ctl.opts.PingPeriod * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		if !limiter.Allow() {
			ctl.sendJSON(c, orch.NewErrorEvent(domain.Errorf(domain.KindRateLimited, "slow down")))
			continue
		}
		ctl.handleSignal(ctx, sid, c, data)
	}
}

// sendPayload accepts the attachment under either "attachment" or "file".
type sendPayload struct {
	Message    string             `json:"message"`
	Attachment *domain.Attachment `json:"attachment"`
	File       *domain.Attachment `json:"file"`
	RoomID     domain.RoomID      `json:"roomId"`
	ReplyTo    string             `json:"replyTo"`
}

// decodeIntent maps one inbound frame to an intent.
func decodeIntent(data []byte) (orch.Intent, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, domain.Errorf(domain.KindInvalidPayload, "bad json")
	}

	var (
		in  orch.Intent
		err error
	)
	switch env.Type {
	case "join":
		var p orch.Join
		err = json.Unmarshal(data, &p)
		in = p
	case "send":
		var p sendPayload
		err = json.Unmarshal(data, &p)
		a := p.Attachment
		if a == nil {
			a = p.File
		}
		in = orch.Send{Message: p.Message, Attachment: a, RoomID: p.RoomID, ReplyTo: p.ReplyTo}
	case "typing":
		var p orch.Typing
		err = json.Unmarshal(data, &p)
		in = p
	case "react":
		var p orch.React
		err = json.Unmarshal(data, &p)
		in = p
	case "switch-room":
		var p orch.SwitchRoom
		err = json.Unmarshal(data, &p)
		in = p
	case "whoami":
		in = orch.WhoAmI{}
	case "ping":
		in = orch.Ping{}
	default:
		return nil, domain.Errorf(domain.KindInvalidPayload, "unknown type %q", env.Type)
	}
	if err != nil {
		return nil, domain.Errorf(domain.KindInvalidPayload, "bad %s payload", env.Type)
	}
	return in, nil
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, sid domain.ParticipantID, c *WsSignalConn, data []byte) {
	in, err := decodeIntent(data)
	if err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad frame")
		ctl.sendJSON(c, orch.NewErrorEvent(err))
		return
	}
	if err := ctl.Orch.Submit(ctx, sid, in); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("intent", in.Type()).Msg("submit failed")
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
