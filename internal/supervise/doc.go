// SPDX-License-Identifier: BSD-3-Clause

// Package supervise is CRM's composition root, the analogue of
// u-bmc/service/operator.Operator scoped to a single modem instance: it
// wires the embedded worker bus, the worker host, and the event-loop
// daemon into one oversight.Tree and runs them until canceled.
package supervise
