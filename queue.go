package blario

// sendQueue buffers encoded outbound frames while the socket cannot send.
// FIFO: flush order equals submission order. Bounded; when full the oldest
// frame is dropped so a long outage cannot grow memory without limit. Not
// safe for concurrent use; the Client serialises access under its mutex.
type sendQueue struct {
	frames  [][]byte
	limit   int
	dropped int
}

func newSendQueue(limit int) *sendQueue {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	return &sendQueue{limit: limit}
}

// push appends a frame, evicting the oldest when the bound is hit.
// Returns true if an old frame was dropped.
func (q *sendQueue) push(frame []byte) bool {
	evicted := false
	if len(q.frames) >= q.limit {
		q.frames = q.frames[1:]
		q.dropped++
		evicted = true
	}
	q.frames = append(q.frames, frame)
	return evicted
}

// drain removes and returns all buffered frames in submission order.
func (q *sendQueue) drain() [][]byte {
	out := q.frames
	q.frames = nil
	return out
}

func (q *sendQueue) len() int { return len(q.frames) }
