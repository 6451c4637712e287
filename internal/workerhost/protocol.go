// SPDX-License-Identifier: BSD-3-Clause

package workerhost

import "encoding/json"

// cmdKind tags the Scalar field of an ipc.Msg exchanged between Host and
// Supervisor; Data carries the JSON-encoded payload for that kind.
type cmdKind int64

const (
	cmdCreate cmdKind = iota + 1
	cmdClean
	cmdKill
	cmdDispose
	// cmdDeathNotice is sent supervisor -> host, unsolicited, when the
	// supervisor observes a worker process exit (WIFSIGNALED or not).
	cmdDeathNotice
)

type createRequest struct {
	ID        int    `json:"id"`
	Plugin    string `json:"plugin"`
	InitBytes []byte `json:"init_bytes"`
	Subject   string `json:"subject"`
}

type simpleRequest struct {
	ID int `json:"id"`
}

type ackResponse struct {
	ID    int    `json:"id"`
	PID   int    `json:"pid"`
	Error string `json:"error,omitempty"`
}

func encodeJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic("workerhost: marshal protocol message: " + err.Error())
	}
	return b
}

func decodeJSON[T any](data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}
