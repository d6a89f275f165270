package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/dyike/agenttrader/models"
	"github.com/kataras/golog"
)

// Recorder writes the steps of one run in the background so persistence
// never stalls the graph. Finish flushes the queue and closes the session.
type Recorder struct {
	store     *Store
	sessionID string

	events chan models.StepRecord
	wg     sync.WaitGroup
	once   sync.Once
	seq    int
}

func NewRecorder(ctx context.Context, store *Store, session models.SessionRecord) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if err := store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	r := &Recorder{
		store:     store,
		sessionID: session.ID,
		events:    make(chan models.StepRecord, 64),
	}
	r.wg.Add(1)
	go r.loop()
	return r, nil
}

func (r *Recorder) SessionID() string { return r.sessionID }

func (r *Recorder) loop() {
	defer r.wg.Done()
	ctx := context.Background()
	for step := range r.events {
		if err := r.store.AppendStep(ctx, step); err != nil {
			golog.Warnf("record step %s/%d: %v", step.SessionID, step.Seq, err)
		}
	}
}

// Record queues one executed node. It must not be called after Finish.
func (r *Recorder) Record(node string, delta *models.StateDelta) {
	payload := ""
	if delta != nil {
		if data, err := json.Marshal(delta); err == nil {
			payload = string(data)
		} else {
			golog.Warnf("encode delta of %s: %v", node, err)
		}
	}
	r.events <- models.StepRecord{SessionID: r.sessionID, Seq: r.seq, Node: node, Delta: payload}
	r.seq++
}

// Finish drains pending steps and stores the outcome of the run.
func (r *Recorder) Finish(ctx context.Context, state *models.TradingState, runErr error) error {
	r.once.Do(func() {
		close(r.events)
	})
	r.wg.Wait()

	status, errMsg := models.SessionCompleted, ""
	if runErr != nil {
		status, errMsg = models.SessionFailed, runErr.Error()
	}
	final := ""
	if state != nil {
		data, err := json.Marshal(state)
		if err != nil {
			return err
		}
		final = string(data)
	}
	return r.store.FinishSession(ctx, r.sessionID, status, errMsg, final)
}
