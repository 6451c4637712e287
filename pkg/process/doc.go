// SPDX-License-Identifier: BSD-3-Clause

// Package process adapts a service.Service into an oversight.ChildProcess:
// a panic inside Run is recovered and turned into an error carrying the
// service's name, so one misbehaving component (the worker bus, the
// worker host, the event-loop daemon) can be restarted by the
// supervision tree in internal/supervise without taking the rest of CRM
// down with it.
package process
