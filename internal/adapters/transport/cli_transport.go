package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/llm-harassment-filter/internal/core"
	"go.uber.org/zap"
)

// inboundMessage is the JSON-lines wire format read from the input stream
type inboundMessage struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"sender_id"`
	GroupID   string    `json:"group_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`

	GroupSize        int  `json:"group_size"`
	GroupWhitelisted bool `json:"group_whitelisted"`
	MonitorMode      bool `json:"monitor_mode"`

	// A line carrying a feedback verdict is a moderator review of an
	// earlier result, not a new message to score.
	FeedbackVerdict  string `json:"feedback_verdict,omitempty"`
	FeedbackCategory string `json:"feedback_category,omitempty"`
	OriginalScore    int    `json:"original_score,omitempty"`
}

// CLITransport implements the ChatTransport interface over a JSON-lines
// stream. Each input line is one message; each output line is one score
// result. It is the integration surface for chat platforms that pipe their
// firehose through a sidecar process.
type CLITransport struct {
	service     *core.ModerationService
	feedback    *core.FeedbackLoop
	input       io.Reader
	output      io.Writer
	whitelisted map[string]struct{}
	logger      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCLITransport creates a new JSON-lines transport. Groups listed in
// whitelistedGroups are treated as whitelisted even when the inbound line
// does not flag them.
func NewCLITransport(service *core.ModerationService, feedback *core.FeedbackLoop, input io.Reader, output io.Writer, whitelistedGroups []string, logger *zap.Logger) *CLITransport {
	whitelisted := make(map[string]struct{}, len(whitelistedGroups))
	for _, g := range whitelistedGroups {
		whitelisted[g] = struct{}{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &CLITransport{
		service:     service,
		feedback:    feedback,
		input:       input,
		output:      output,
		whitelisted: whitelisted,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// ProcessMessage scores a single message in its group context
func (t *CLITransport) ProcessMessage(ctx context.Context, msg *core.Message, group *core.GroupContext) (*core.ScoreResult, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if group != nil && !group.Whitelisted {
		if _, ok := t.whitelisted[msg.GroupID]; ok {
			group.Whitelisted = true
		}
	}
	return t.service.ScoreMessage(ctx, msg, group)
}

// Start begins reading messages from the input stream until it is exhausted
// or the transport is stopped
func (t *CLITransport) Start() error {
	t.wg.Add(1)
	go t.readLoop()
	return nil
}

// readLoop consumes input lines and emits one result line per message
func (t *CLITransport) readLoop() {
	defer t.wg.Done()

	scanner := bufio.NewScanner(t.input)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var in inboundMessage
		if err := json.Unmarshal(line, &in); err != nil {
			t.logger.Warn("Skipping malformed input line", zap.Error(err))
			continue
		}

		if in.FeedbackVerdict != "" {
			t.recordFeedback(&in)
			continue
		}

		msg := &core.Message{
			ID:        in.ID,
			SenderID:  in.SenderID,
			GroupID:   in.GroupID,
			Text:      in.Text,
			Timestamp: in.Timestamp,
		}
		group := &core.GroupContext{
			Size:        in.GroupSize,
			Whitelisted: in.GroupWhitelisted,
			MonitorMode: in.MonitorMode,
		}

		result, err := t.ProcessMessage(t.ctx, msg, group)
		if err != nil {
			t.logger.Error("Failed to score message",
				zap.Error(err),
				zap.String("message_id", msg.ID))
			continue
		}
		t.emit(result)
	}

	if err := scanner.Err(); err != nil {
		t.logger.Error("Input stream error", zap.Error(err))
	}
}

// recordFeedback forwards a moderator review line to the feedback loop
func (t *CLITransport) recordFeedback(in *inboundMessage) {
	if t.feedback == nil {
		t.logger.Warn("Feedback line received but no feedback loop configured",
			zap.String("message_id", in.ID))
		return
	}
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	t.feedback.Record(core.FeedbackRecord{
		MessageID:     in.ID,
		Verdict:       core.FeedbackVerdict(in.FeedbackVerdict),
		Category:      core.NormalizeCategory(in.FeedbackCategory),
		OriginalScore: in.OriginalScore,
		ReviewedAt:    ts,
	})
}

// emit writes one result as a JSON line
func (t *CLITransport) emit(result *core.ScoreResult) {
	data, err := json.Marshal(result)
	if err != nil {
		t.logger.Error("Failed to marshal score result", zap.Error(err))
		return
	}
	if _, err := fmt.Fprintf(t.output, "%s\n", data); err != nil {
		t.logger.Error("Failed to write score result", zap.Error(err))
	}
}

// Stop cancels the read loop and waits for it to drain
func (t *CLITransport) Stop() error {
	t.cancel()
	t.wg.Wait()
	return nil
}
