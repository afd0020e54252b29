package mirror

import (
	"context"
	"time"

	"sentryline/internal/apperr"
	"sentryline/internal/logger"
	"sentryline/internal/syncstate"
	"sentryline/pkg/models"
)

// Op is a zone push operation.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// ZoneLister supplies the zones a resync replays.
type ZoneLister interface {
	ListZones(ctx context.Context, activeOnly bool) ([]models.Zone, error)
}

// Recorder keeps the last outcome per zone.
type Recorder interface {
	Record(ctx context.Context, o syncstate.Outcome) error
}

// Observer receives push counters.
type Observer interface {
	MirrorPush(op, result string)
}

// SyncerConfig configures a Syncer.
type SyncerConfig struct {
	Timeout  time.Duration
	Recorder Recorder
	Observer Observer
}

// Syncer applies the bounded timeout and absorbs every delivery failure.
// It keeps no queue; callers order pushes for the same zone.
type Syncer struct {
	client   Client
	zones    ZoneLister
	timeout  time.Duration
	recorder Recorder
	observer Observer
}

// NewSyncer creates a syncer. A nil client disables delivery.
func NewSyncer(client Client, zones ZoneLister, cfg SyncerConfig) *Syncer {
	if client == nil {
		client = NoopClient{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Syncer{
		client:   client,
		zones:    zones,
		timeout:  cfg.Timeout,
		recorder: cfg.Recorder,
		observer: cfg.Observer,
	}
}

// Push delivers one operation. Failures are logged as sync errors and
// swallowed.
func (s *Syncer) Push(ctx context.Context, op Op, zone *models.Zone) {
	_ = s.push(ctx, op, zone)
}

func (s *Syncer) push(ctx context.Context, op Op, zone *models.Zone) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payload := PayloadFor(zone)
	var err error
	switch op {
	case OpCreate:
		err = s.client.Create(ctx, payload)
	case OpUpdate:
		err = s.client.Update(ctx, payload)
	case OpDelete:
		err = s.client.Delete(ctx, payload)
	default:
		err = apperr.Validation("unknown mirror operation %q", op)
	}

	result := "ok"
	if err != nil {
		result = "error"
		err = apperr.Sync(err, "push-%s zone %q", op, zone.Name)
		logger.Warnf("Zone mirror %v", err)
	} else {
		logger.Debugf("Zone mirror push-%s zone %q ok", op, zone.Name)
	}
	if s.observer != nil {
		s.observer.MirrorPush(string(op), result)
	}
	s.record(zone, op, err)
	return err
}

func (s *Syncer) record(zone *models.Zone, op Op, pushErr error) {
	if s.recorder == nil {
		return
	}
	// The push context may already be spent; the ledger gets its own.
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	err := s.recorder.Record(ctx, syncstate.Outcome{
		ZoneID:   zone.ID,
		ZoneName: zone.Name,
		Op:       string(op),
		Err:      pushErr,
		At:       time.Now().UTC(),
	})
	if err != nil {
		logger.Warnf("Failed to record sync state for zone %s: %v", zone.ID, err)
	}
}

// ResyncFailure names a zone the resync could not deliver.
type ResyncFailure struct {
	ZoneID string `json:"zone_id"`
	Name   string `json:"name"`
	Error  string `json:"error"`
}

// ResyncResult partitions the active zones by delivery outcome.
type ResyncResult struct {
	Succeeded []string        `json:"succeeded"`
	Failed    []ResyncFailure `json:"failed"`
}

// Resync push-creates every active zone, one at a time. Only a failure to
// list zones is returned as an error.
func (s *Syncer) Resync(ctx context.Context) (*ResyncResult, error) {
	zones, err := s.zones.ListZones(ctx, true)
	if err != nil {
		return nil, err
	}

	out := &ResyncResult{Succeeded: []string{}, Failed: []ResyncFailure{}}
	for i := range zones {
		z := &zones[i]
		if err := s.push(ctx, OpCreate, z); err != nil {
			out.Failed = append(out.Failed, ResyncFailure{ZoneID: z.ID, Name: z.Name, Error: apperr.Message(err)})
			continue
		}
		out.Succeeded = append(out.Succeeded, z.ID)
	}
	logger.Infof("Zone resync finished: succeeded=%d failed=%d", len(out.Succeeded), len(out.Failed))
	return out, nil
}
