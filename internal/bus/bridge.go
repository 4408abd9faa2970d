// Copyright (C) 2024 right-sizer contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package bus

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Bridge forwards every Publish whose topic matches prefix to client,
// and feeds client's inbound messages back in as if locally published.
// An external broker being down is non-fatal: the bus keeps operating
// locally, logs at most one error per retry window, and reconnects with
// exponential backoff.
func (b *Bus) Bridge(ctx context.Context, prefix string, client ExternalClient, reconnectBase time.Duration) {
	b.mu.Lock()
	b.bridgePrefix = prefix
	b.external = client
	bridgeCtx, cancel := context.WithCancel(ctx)
	b.bridgeCancel = cancel
	b.mu.Unlock()

	go b.runInboundBridge(bridgeCtx, client, reconnectBase)
}

func (b *Bus) runInboundBridge(ctx context.Context, client ExternalClient, reconnectBase time.Duration) {
	if reconnectBase <= 0 {
		reconnectBase = time.Second
	}
	backoff := reconnectBase
	loggedThisWindow := false
	windowStart := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := client.Subscribe(ctx, func(topic string, payload []byte) {
			var v interface{}
			if jsonErr := json.Unmarshal(payload, &v); jsonErr != nil {
				v = string(payload)
			}
			b.publish(Message{Topic: topic, Timestamp: time.Now(), Payload: v, external: true})
		})
		if err == nil {
			return
		}

		if time.Since(windowStart) > reconnectBase*10 {
			windowStart = time.Now()
			loggedThisWindow = false
		}
		if !loggedThisWindow {
			b.log.Error("external broker subscribe failed, will retry", zap.Error(err))
			loggedThisWindow = true
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (b *Bus) forwardExternal(msg Message) {
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		b.log.Error("failed to marshal outbound bridge payload", zap.String("topic", msg.Topic), zap.Error(err))
		return
	}
	if err := b.external.Publish(context.Background(), msg.Topic, data); err != nil {
		b.log.Warn("external broker publish failed, continuing locally",
			zap.String("topic", msg.Topic), zap.Error(err))
	}
}
