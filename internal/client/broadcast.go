// SPDX-License-Identifier: BSD-3-Clause

package client

import (
	"fmt"

	"github.com/crm-project/crm/pkg/wire"
)

// Broadcast encodes msg once and writes it to every connected client
// subscribed to msg.ID, per the bitmap each client registered with.
// Silent-reset suppression (DBG_ENABLE_SILENT_RESET) is applied by the
// caller before Broadcast is reached: it only ever hides the
// MDM_DBG_INFO{SELF_RESET} notification, never the MDM_DOWN/MDM_UP pair
// that surrounds it.
func (a *Aggregator) Broadcast(msg wire.Message) error {
	frame, err := wire.Encode(msg)
	if err != nil {
		return fmt.Errorf("client: encode broadcast: %w", err)
	}

	for _, c := range a.All() {
		c.mu.Lock()
		disconnected := c.disconnected
		w := c.writer
		subscribed := c.Subscribed(msg.ID)
		c.mu.Unlock()

		if disconnected || w == nil || !subscribed {
			continue
		}
		if _, err := w.Write(frame); err != nil {
			a.cfg.logger.Warn("broadcast write failed", "client", c.ID, "name", c.Name, "event", msg.ID, "error", err)
		}
	}
	return nil
}

// Send writes msg to a single client, regardless of its subscription
// bitmap: used for direct replies rather than broadcast events.
func (a *Aggregator) Send(id string, msg wire.Message) error {
	c, err := a.Get(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	w := c.writer
	disconnected := c.disconnected
	c.mu.Unlock()
	if disconnected || w == nil {
		return nil
	}
	return wire.EncodeTo(w, msg)
}
