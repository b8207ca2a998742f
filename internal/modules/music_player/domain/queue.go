package domain

import "github.com/disgoorg/snowflake/v2"

// Queue is a FIFO sequence of pending tracks. Insertion order is play order.
type Queue struct {
	tracks []Track
}

// NewQueue creates a new empty Queue.
func NewQueue() Queue {
	return Queue{
		tracks: make([]Track, 0),
	}
}

// IsEmpty returns true if the queue has no tracks.
func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

// Len returns the number of pending tracks.
func (q *Queue) Len() int {
	return len(q.tracks)
}

func (q *Queue) isValidIndex(index int) bool {
	return 0 <= index && index < q.Len()
}

// List returns a copy of all pending tracks in play order.
func (q *Queue) List() []Track {
	result := make([]Track, q.Len())
	copy(result, q.tracks)
	return result
}

// Append adds a track to the tail of the queue.
func (q *Queue) Append(track Track) {
	q.tracks = append(q.tracks, track)
}

// PopFront removes and returns the head of the queue.
// Returns false if the queue is empty.
func (q *Queue) PopFront() (Track, bool) {
	if q.IsEmpty() {
		return Track{}, false
	}

	head := q.tracks[0]
	q.tracks[0] = Track{}
	q.tracks = q.tracks[1:]
	return head, true
}

// RemoveAt removes and returns the track at the given 0-based index,
// preserving the order of the remaining tracks.
// Returns false if the index is out of bounds.
func (q *Queue) RemoveAt(index int) (Track, bool) {
	if !q.isValidIndex(index) {
		return Track{}, false
	}

	track := q.tracks[index]
	q.tracks = append(q.tracks[:index], q.tracks[index+1:]...)
	return track, true
}

// CountByRequester returns how many pending tracks were requested by the given user.
func (q *Queue) CountByRequester(requesterID snowflake.ID) int {
	count := 0
	for _, t := range q.tracks {
		if t.RequesterID == requesterID {
			count++
		}
	}
	return count
}

// Clear removes all pending tracks and returns how many were removed.
func (q *Queue) Clear() int {
	n := q.Len()
	q.tracks = make([]Track, 0)
	return n
}
