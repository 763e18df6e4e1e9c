package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
)

const (
	defaultStoreKeyPrefix = "sentinell:"
	maxResponseSizeBytes  = 2 << 20
)

// Store is the persistence contract used by the procurement service.
// Load and FindByApproval wrap contract.ErrWorkflowNotFound and
// contract.ErrApprovalNotFound respectively.
type Store interface {
	Load(ctx context.Context, workflowID string) (*Workflow, error)
	Save(ctx context.Context, wf *Workflow) error
	Delete(ctx context.Context, workflowID string) error
	FindByApproval(ctx context.Context, approvalID string) (*Workflow, error)
	ListPending(ctx context.Context) ([]*Workflow, error)
}

// StoreOption customizes UpstashRedisStore.
type StoreOption func(*UpstashRedisStore)

func WithKeyPrefix(prefix string) StoreOption {
	return func(s *UpstashRedisStore) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

// WithTTL expires finished workflows. Workflows awaiting approval are never
// given a TTL.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *UpstashRedisStore) {
		s.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) StoreOption {
	return func(s *UpstashRedisStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

var _ Store = (*UpstashRedisStore)(nil)

// UpstashRedisStore persists workflows in Upstash Redis via REST. Each
// workflow is a JSON string; an approval index key and a pending set make
// approvals resolvable by id after a restart. Save runs as one Lua script
// that checks the stored version, so a stale copy never overwrites newer
// state from another process.
type UpstashRedisStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
}

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type UpstashRedisConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	TTL     time.Duration `envconfig:"TTL" split_words:"true" default:"0s"`
}

func NewUpstashRedisStore(cfg UpstashRedisConfig, opts ...StoreOption) (*UpstashRedisStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	store := &UpstashRedisStore{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		keyPrefix: defaultStoreKeyPrefix,
		ttl:       cfg.TTL,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	if store.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}

	return store, nil
}

func (s *UpstashRedisStore) Load(ctx context.Context, workflowID string) (*Workflow, error) {
	key, err := s.workflowKey(workflowID)
	if err != nil {
		return nil, err
	}

	resp, err := s.exec(ctx, []any{"GET", key})
	if err != nil {
		return nil, err
	}

	encoded, ok, err := decodeString(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("decode workflow payload: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", contractx.ErrWorkflowNotFound, workflowID)
	}

	return decodeWorkflow([]byte(encoded))
}

// saveScript writes a workflow only when the stored version matches the
// caller's, and updates the approval index and pending set in the same
// step. KEYS: workflow, pending set, approval index. ARGV: payload,
// expected version, ttl seconds, workflow id, pending flag, approval flag.
const saveScript = `
local cur = redis.call('GET', KEYS[1])
local expected = tonumber(ARGV[2])
if cur then
  local stored = tonumber(cjson.decode(cur)['version']) or 0
  if stored ~= expected then return 0 end
elseif expected ~= 0 then
  return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'EX', ttl)
else
  redis.call('SET', KEYS[1], ARGV[1])
end
if ARGV[5] == '1' then
  redis.call('SADD', KEYS[2], ARGV[4])
else
  redis.call('SREM', KEYS[2], ARGV[4])
end
if ARGV[6] == '1' then
  redis.call('SET', KEYS[3], ARGV[4])
end
return 1
`

func (s *UpstashRedisStore) Save(ctx context.Context, wf *Workflow) error {
	if err := prepareSave(wf); err != nil {
		return err
	}

	key, err := s.workflowKey(wf.ID)
	if err != nil {
		return err
	}

	expected := wf.Version
	wf.Version++
	payload, err := json.Marshal(wf)
	if err != nil {
		wf.Version = expected
		return fmt.Errorf("marshal workflow: %w", err)
	}

	var ttl int64
	if s.ttl > 0 && wf.IsTerminal() {
		ttl = ttlSeconds(s.ttl)
	}
	approvalKey, indexed := key, "0"
	if wf.Approval != nil {
		approvalKey, indexed = s.approvalKey(wf.Approval.ID), "1"
	}
	pending := "0"
	if wf.PendingApproval() {
		pending = "1"
	}

	resp, err := s.exec(ctx, []any{
		"EVAL", saveScript, 3, key, s.pendingKey(), approvalKey,
		string(payload), expected, ttl, wf.ID, pending, indexed,
	})
	if err != nil {
		wf.Version = expected
		return err
	}
	var applied int
	if err := json.Unmarshal(resp.Result, &applied); err != nil {
		wf.Version = expected
		return fmt.Errorf("decode save result: %w", err)
	}
	if applied != 1 {
		wf.Version = expected
		return fmt.Errorf("%w: %s at version %d", ErrStaleWorkflow, wf.ID, expected)
	}
	return nil
}

func (s *UpstashRedisStore) Delete(ctx context.Context, workflowID string) error {
	key, err := s.workflowKey(workflowID)
	if err != nil {
		return err
	}
	if _, err := s.exec(ctx, []any{"DEL", key}); err != nil {
		return err
	}
	_, err = s.exec(ctx, []any{"SREM", s.pendingKey(), workflowID})
	return err
}

func (s *UpstashRedisStore) FindByApproval(ctx context.Context, approvalID string) (*Workflow, error) {
	if strings.TrimSpace(approvalID) == "" {
		return nil, fmt.Errorf("%w: empty approval id", contractx.ErrApprovalNotFound)
	}
	resp, err := s.exec(ctx, []any{"GET", s.approvalKey(approvalID)})
	if err != nil {
		return nil, err
	}
	workflowID, ok, err := decodeString(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("decode approval index: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", contractx.ErrApprovalNotFound, approvalID)
	}
	wf, err := s.Load(ctx, workflowID)
	if errors.Is(err, contractx.ErrWorkflowNotFound) {
		return nil, fmt.Errorf("%w: %s", contractx.ErrApprovalNotFound, approvalID)
	}
	return wf, err
}

func (s *UpstashRedisStore) ListPending(ctx context.Context) ([]*Workflow, error) {
	resp, err := s.exec(ctx, []any{"SMEMBERS", s.pendingKey()})
	if err != nil {
		return nil, err
	}
	var ids []string
	if trimmed := bytes.TrimSpace(resp.Result); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &ids); err != nil {
			return nil, fmt.Errorf("decode pending set: %w", err)
		}
	}

	out := make([]*Workflow, 0, len(ids))
	for _, id := range ids {
		wf, err := s.Load(ctx, id)
		if errors.Is(err, contractx.ErrWorkflowNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if wf.PendingApproval() {
			out = append(out, wf)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *UpstashRedisStore) workflowKey(workflowID string) (string, error) {
	if strings.TrimSpace(workflowID) == "" {
		return "", ErrInvalidWorkflowID
	}
	return s.prefix() + "workflow:" + workflowID, nil
}

func (s *UpstashRedisStore) approvalKey(approvalID string) string {
	return s.prefix() + "approval:" + approvalID
}

func (s *UpstashRedisStore) pendingKey() string {
	return s.prefix() + "pending"
}

func (s *UpstashRedisStore) prefix() string {
	prefix := strings.TrimSpace(s.keyPrefix)
	if prefix == "" {
		return defaultStoreKeyPrefix
	}
	return prefix
}

func (s *UpstashRedisStore) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if s == nil {
		return nil, errors.New("nil store")
	}
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}
	if strings.TrimSpace(s.baseURL) == "" {
		return nil, errors.New("empty redis url")
	}
	if strings.TrimSpace(s.token) == "" {
		return nil, errors.New("empty redis token")
	}

	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func decodeString(raw json.RawMessage) (string, bool, error) {
	result := bytes.TrimSpace(raw)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(result, &s); err != nil {
		return "", false, err
	}
	return s, true, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
