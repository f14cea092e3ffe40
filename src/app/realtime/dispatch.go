package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"trackrater/src/core/domain"
	"trackrater/src/core/usecase"
	"trackrater/src/infra/logger"
)

// Inbound command names.
const (
	CmdJoinRating          = "join_rating"
	CmdLeaveRating         = "leave_rating"
	CmdKickRater           = "kick_rater"
	CmdChangeSlider        = "change_slider"
	CmdChangeTrackName     = "change_track_name"
	CmdChangeRaterName     = "change_rater_name"
	CmdSetPriority         = "admin_set_submission_priority"
	CmdDeleteSubmission    = "admin_delete_submission"
	CmdActivateSubmission  = "admin_activate_submission"
	CmdPlayback            = "admin_playback_cmd"
	CmdEvaluate            = "evaluate"
	CmdResetState          = "reset_state"
	CmdRequestQueueState   = "request_queue_state"
	CmdRequestInitialState = "request_initial_state"
	CmdEnterPanel          = "enter_panel"
	CmdLeavePanel          = "leave_panel"
)

// Kick outcomes reported in kick_result.msg.
const (
	KickNotAdmin = "not_admin"
	KickNoTarget = "no_target"
	KickNotFound = "not_found"
	KickDone     = "kicked"
)

var errUnknownCommand = errors.New("unknown command")

// InboundObserver records the outcome of every inbound command.
type InboundObserver interface {
	ObserveInbound(event string, err error)
}

// Dispatcher routes inbound commands to the core services. Errors never
// reach the client; they are logged at debug level.
type Dispatcher struct {
	queue    *usecase.QueueService
	playback *usecase.PlaybackService
	rating   *usecase.RatingService
	gw       *usecase.Gateway
	observer InboundObserver
	log      *slog.Logger

	routes map[string]func(context.Context, Session, json.RawMessage) error
}

var _ Handler = (*Dispatcher)(nil)

func NewDispatcher(queue *usecase.QueueService, playback *usecase.PlaybackService, rating *usecase.RatingService, gw *usecase.Gateway, observer InboundObserver, log *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		queue:    queue,
		playback: playback,
		rating:   rating,
		gw:       gw,
		observer: observer,
		log:      log,
	}
	d.routes = map[string]func(context.Context, Session, json.RawMessage) error{
		CmdJoinRating:          d.joinRating,
		CmdLeaveRating:         d.leaveRating,
		CmdKickRater:           d.kickRater,
		CmdChangeSlider:        d.changeSlider,
		CmdChangeTrackName:     d.changeTrackName,
		CmdChangeRaterName:     d.changeRaterName,
		CmdSetPriority:         d.setPriority,
		CmdDeleteSubmission:    d.deleteSubmission,
		CmdActivateSubmission:  d.activateSubmission,
		CmdPlayback:            d.playbackCmd,
		CmdEvaluate:            d.evaluate,
		CmdResetState:          d.resetState,
		CmdRequestQueueState:   d.requestQueueState,
		CmdRequestInitialState: d.requestInitialState,
		CmdEnterPanel:          d.enterPanel,
		CmdLeavePanel:          d.leavePanel,
	}
	return d
}

// Connected restores a judge's slot binding after a reconnect.
func (d *Dispatcher) Connected(ctx context.Context, s Session) {
	if d.rating.Restore(ctx, s.Who, s.ConnID) {
		d.log.Debug("rater slot restored", "conn_id", s.ConnID, "user_id", s.Who.ID)
	}
}

// Handle runs one inbound command.
func (d *Dispatcher) Handle(ctx context.Context, s Session, event string, data json.RawMessage) {
	route, ok := d.routes[event]
	var err error
	if !ok {
		err = fmt.Errorf("%w: %s", errUnknownCommand, event)
	} else {
		err = route(ctx, s, data)
	}
	if d.observer != nil {
		d.observer.ObserveInbound(event, err)
	}
	if err != nil {
		logger.WithConn(d.log, s.ConnID).Debug("command ignored",
			"event", event,
			"user_id", s.Who.ID,
			"error", err,
		)
	}
}

func (d *Dispatcher) joinRating(ctx context.Context, s Session, _ json.RawMessage) error {
	_, err := d.rating.Join(ctx, s.Who, s.ConnID)
	return err
}

func (d *Dispatcher) leaveRating(ctx context.Context, s Session, _ json.RawMessage) error {
	return d.rating.Leave(ctx, s.Who, s.ConnID)
}

type kickRequest struct {
	UserID  flexInt    `json:"user_id"`
	RaterID flexString `json:"rater_id"`
}

// KickResult is the direct reply to kick_rater.
type KickResult struct {
	OK      bool   `json:"ok"`
	Msg     string `json:"msg"`
	UserID  string `json:"user_id,omitempty"`
	RaterID string `json:"rater_id,omitempty"`
}

func (d *Dispatcher) kickRater(ctx context.Context, s Session, data json.RawMessage) error {
	var req kickRequest
	err := decode(data, &req)
	if err == nil {
		var slot domain.RaterSlot
		slot, err = d.rating.Kick(ctx, s.Who, usecase.KickTarget{UserID: req.UserID.Value, RaterID: string(req.RaterID)})
		if err == nil {
			d.gw.EmitTo(ctx, s.ConnID, usecase.EventKickResult, KickResult{
				OK:      true,
				Msg:     KickDone,
				UserID:  strconv.FormatInt(slot.UserID, 10),
				RaterID: slot.RaterID,
			})
			return nil
		}
	}
	d.gw.EmitTo(ctx, s.ConnID, usecase.EventKickResult, KickResult{Msg: kickFailure(err)})
	return err
}

func kickFailure(err error) string {
	switch {
	case domain.IsForbidden(err), domain.IsUnauthorized(err):
		return KickNotAdmin
	case domain.IsNotFound(err):
		return KickNotFound
	default:
		return KickNoTarget
	}
}

type sliderRequest struct {
	RaterID      flexString `json:"rater_id"`
	CriterionKey string     `json:"criterion_key"`
	Value        flexFloat  `json:"value"`
}

func (d *Dispatcher) changeSlider(ctx context.Context, s Session, data json.RawMessage) error {
	var req sliderRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if req.RaterID == "" || req.CriterionKey == "" {
		return domain.NewValidationError("rater_id", "rater_id and criterion_key required")
	}
	return d.rating.SetScore(ctx, s.Who, string(req.RaterID), req.CriterionKey, req.Value.Value)
}

func (d *Dispatcher) changeTrackName(ctx context.Context, s Session, data json.RawMessage) error {
	var req struct {
		TrackName string `json:"track_name"`
	}
	if err := decode(data, &req); err != nil {
		return err
	}
	return d.rating.ChangeTrackName(ctx, s.Who, strings.TrimSpace(req.TrackName))
}

func (d *Dispatcher) changeRaterName(ctx context.Context, s Session, data json.RawMessage) error {
	var req struct {
		RaterID flexString `json:"rater_id"`
		Name    string     `json:"name"`
	}
	if err := decode(data, &req); err != nil {
		return err
	}
	name := strings.TrimSpace(req.Name)
	if req.RaterID == "" || name == "" {
		return domain.NewValidationError("name", "rater_id and name required")
	}
	return d.rating.RenameRater(ctx, s.Who, string(req.RaterID), name)
}

type submissionRequest struct {
	SubmissionID flexInt `json:"submission_id"`
}

func (r submissionRequest) id() (int64, error) {
	if r.SubmissionID.Value <= 0 {
		return 0, domain.NewValidationError("submission_id", "submission_id required")
	}
	return r.SubmissionID.Value, nil
}

func (d *Dispatcher) setPriority(ctx context.Context, s Session, data json.RawMessage) error {
	var req struct {
		submissionRequest
		Priority flexInt `json:"priority"`
	}
	if err := decode(data, &req); err != nil {
		return err
	}
	id, err := req.id()
	if err != nil {
		return err
	}
	if !req.Priority.Set {
		return domain.NewValidationError("priority", "priority required")
	}
	p, err := domain.ParsePriority(int(req.Priority.Value))
	if err != nil {
		return err
	}
	_, err = d.queue.SetPriority(ctx, s.Who, id, p)
	return err
}

func (d *Dispatcher) deleteSubmission(ctx context.Context, s Session, data json.RawMessage) error {
	var req submissionRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	id, err := req.id()
	if err != nil {
		return err
	}
	return d.queue.Delete(ctx, s.Who, id)
}

func (d *Dispatcher) activateSubmission(ctx context.Context, s Session, data json.RawMessage) error {
	var req struct {
		submissionRequest
		Autoplay *bool `json:"autoplay"`
	}
	if err := decode(data, &req); err != nil {
		return err
	}
	id, err := req.id()
	if err != nil {
		return err
	}
	autoplay := req.Autoplay == nil || *req.Autoplay
	_, err = d.playback.Activate(ctx, s.Who, id, autoplay)
	return err
}

func (d *Dispatcher) playbackCmd(ctx context.Context, s Session, data json.RawMessage) error {
	var req struct {
		Action     string  `json:"action"`
		PositionMS flexInt `json:"position_ms"`
	}
	if err := decode(data, &req); err != nil {
		return err
	}
	action, err := domain.ParsePlaybackAction(req.Action)
	if err != nil {
		return err
	}
	_, err = d.playback.Command(ctx, s.Who, action, req.PositionMS.Value)
	return err
}

func (d *Dispatcher) evaluate(ctx context.Context, s Session, _ json.RawMessage) error {
	_, err := d.rating.Evaluate(ctx, s.Who)
	return err
}

func (d *Dispatcher) resetState(ctx context.Context, s Session, _ json.RawMessage) error {
	return d.rating.Reset(ctx, s.Who)
}

func (d *Dispatcher) requestQueueState(ctx context.Context, s Session, _ json.RawMessage) error {
	if !s.Who.Role.CanAccessPanel() {
		return domain.NewForbiddenError("panel access required")
	}
	d.gw.SendQueueState(ctx, s.ConnID)
	d.gw.SendPlaybackState(ctx, s.ConnID)
	return nil
}

func (d *Dispatcher) requestInitialState(ctx context.Context, s Session, _ json.RawMessage) error {
	d.gw.SendPanelState(ctx, s.ConnID)
	return nil
}

func (d *Dispatcher) enterPanel(ctx context.Context, s Session, _ json.RawMessage) error {
	return d.rating.EnterPanel(ctx, s.Who, s.ConnID)
}

func (d *Dispatcher) leavePanel(_ context.Context, s Session, _ json.RawMessage) error {
	d.rating.LeavePanel(s.ConnID)
	return nil
}

func decode(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return domain.NewValidationError("data", err.Error())
	}
	return nil
}

// flexInt accepts a JSON number or a numeric string. Fractions truncate.
type flexInt struct {
	Value int64
	Set   bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s, ok := scalarText(b)
	if !ok {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		f.Value, f.Set = n, true
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", s)
	}
	f.Value, f.Set = int64(v), true
	return nil
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat struct {
	Value float64
	Set   bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s, ok := scalarText(b)
	if !ok {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", s)
	}
	f.Value, f.Set = v, true
	return nil
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s, ok := scalarText(b)
	if ok {
		*f = flexString(s)
	}
	return nil
}

// scalarText unquotes b and reports false for null or empty input.
func scalarText(b []byte) (string, bool) {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return "", false
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
	}
	return s, s != ""
}
