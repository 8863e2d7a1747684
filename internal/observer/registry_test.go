package observer

import (
	"errors"
	"testing"

	"github.com/alanyoungcy/coinwatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hookRecorder struct {
	activated   []string
	deactivated []string
	failNext    error
}

func (h *hookRecorder) hooks() Hooks {
	return Hooks{
		OnActivate: func(event string) error {
			if h.failNext != nil {
				err := h.failNext
				h.failNext = nil
				return err
			}
			h.activated = append(h.activated, event)
			return nil
		},
		OnDeactivate: func(event string) error {
			h.deactivated = append(h.deactivated, event)
			return nil
		},
	}
}

func newTestRegistry(h *hookRecorder) (*Registry, *Topic[int], *Topic[string]) {
	ints := NewTopic[int]("ints")
	strs := NewTopic[string]("strs")
	return NewRegistry(h.hooks(), ints, strs), ints, strs
}

func TestRegistry_ActivationOnceAcrossListeners(t *testing.T) {
	h := &hookRecorder{}
	r, _, _ := newTestRegistry(h)

	id1, err := r.Listen("ints", func(int) {})
	require.NoError(t, err)
	id2, err := r.Listen("ints", func(int) {})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, []string{"ints"}, h.activated)

	require.NoError(t, r.Unlisten("ints", id1))
	assert.Empty(t, h.deactivated, "still one listener left")

	require.NoError(t, r.Unlisten("ints", id2))
	assert.Equal(t, []string{"ints"}, h.deactivated)

	_, err = r.Listen("ints", func(int) {})
	require.NoError(t, err)
	assert.Equal(t, []string{"ints", "ints"}, h.activated, "reactivates after going idle")
}

func TestRegistry_InvalidArguments(t *testing.T) {
	h := &hookRecorder{}
	r, ints, _ := newTestRegistry(h)

	tests := []struct {
		name  string
		event string
		fn    any
	}{
		{name: "unknown event", event: "nope", fn: func(int) {}},
		{name: "nil callback", event: "ints", fn: nil},
		{name: "typed nil callback", event: "ints", fn: (func(int))(nil)},
		{name: "not callable", event: "ints", fn: 42},
		{name: "wrong signature", event: "ints", fn: func(string) {}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Listen(tt.event, tt.fn)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
			assert.Zero(t, ints.Len())
			assert.Empty(t, h.activated)
		})
	}
}

func TestRegistry_UnlistenUnknown(t *testing.T) {
	r, _, _ := newTestRegistry(&hookRecorder{})

	err := r.Unlisten("ints", ListenerID("missing"))
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	id, err := r.Listen("strs", func(string) {})
	require.NoError(t, err)
	err = r.Unlisten("ints", id)
	assert.True(t, errors.Is(err, domain.ErrNotFound), "id belongs to another event")

	err = r.Unlisten("nope", id)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestRegistry_FailedActivationRollsBack(t *testing.T) {
	h := &hookRecorder{failNext: errors.New("subscribe failed")}
	r, ints, _ := newTestRegistry(h)

	_, err := r.Listen("ints", func(int) {})
	require.Error(t, err)
	assert.Zero(t, ints.Len())

	_, err = r.Listen("ints", func(int) {})
	require.NoError(t, err)
	assert.Equal(t, []string{"ints"}, h.activated)
}

func TestTopic_NotifyOrderAndSelfRemoval(t *testing.T) {
	h := &hookRecorder{}
	_, ints, _ := newTestRegistry(h)

	var got []string
	var selfID ListenerID
	_, err := ints.Listen(func(v int) { got = append(got, "first") })
	require.NoError(t, err)
	selfID, err = ints.Listen(func(v int) {
		got = append(got, "once")
		require.NoError(t, ints.Unlisten(selfID))
	})
	require.NoError(t, err)
	_, err = ints.Listen(func(v int) { got = append(got, "last") })
	require.NoError(t, err)

	assert.Equal(t, 3, ints.Notify(1))
	assert.Equal(t, 2, ints.Notify(2))
	assert.Equal(t, []string{"first", "once", "last", "first", "last"}, got)
	assert.Equal(t, []string{"ints"}, h.activated, "topic-level Listen goes through the registry hooks")
}

func TestTopic_Standalone(t *testing.T) {
	topic := NewTopic[string]("solo")
	sum := ""
	id, err := topic.Listen(func(s string) { sum += s })
	require.NoError(t, err)

	topic.Notify("a")
	topic.Notify("b")
	assert.Equal(t, "ab", sum)

	require.NoError(t, topic.Unlisten(id))
	assert.Zero(t, topic.Notify("c"))
	assert.True(t, errors.Is(topic.Unlisten(id), domain.ErrNotFound))
}

func TestRegistry_EventsAndListeners(t *testing.T) {
	r, _, _ := newTestRegistry(&hookRecorder{})
	assert.Equal(t, []string{"ints", "strs"}, r.Events())

	_, err := r.Listen("strs", func(string) {})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Listeners("strs"))
	assert.Equal(t, 0, r.Listeners("ints"))
	assert.Equal(t, 0, r.Listeners("nope"))
}
