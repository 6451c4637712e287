// SPDX-License-Identifier: BSD-3-Clause

// Package ipc provides the Channel abstraction used to pass messages between
// the control FSM and everything else that talks to it: worker modules,
// clients, and the HAL adapter.
//
// A Channel is the Go analogue of the original's crm_ipc_ctx_t: something
// that can be polled for readiness, drained non-blockingly, and sent to
// without blocking the sender. Two backends implement it.
//
//   - ThreadChannel wraps a buffered Go channel. Used when the producer and
//     consumer live in the same process (goroutines), matching the
//     original's CRM_IPC_THREAD mode. Sends and receives never copy the
//     payload: the same []byte header moves from sender to receiver.
//   - ProcessChannel wraps a pair of subjects on the embedded NATS bus
//     (see internal/workerbus). Used when the consumer lives in a forked
//     worker process, matching CRM_IPC_PROCESS mode. Payload bytes are
//     always copied across this boundary; nothing but bytes ever crosses it.
//
// Callers that don't care which backend they were handed write ordinary Go:
//
//	select {
//	case <-ch.Ready():
//		for {
//			msg, ok := ch.TryGet()
//			if !ok {
//				break
//			}
//			handle(msg)
//		}
//	case <-ctx.Done():
//		return ctx.Err()
//	}
package ipc
