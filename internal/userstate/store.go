package userstate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	propertyCacheTTL = 180 * 24 * time.Hour
	lastAgentTTL     = 10 * time.Minute
	dedupTTL         = 30 * time.Second
)

// Property is one search result as cached for later tool calls.
type Property struct {
	ID           string  `json:"property_id"`
	Name         string  `json:"property_name"`
	Location     string  `json:"property_location,omitempty"`
	Rent         string  `json:"property_rent,omitempty"`
	AvailableFor string  `json:"pg_available_for,omitempty"`
	Type         string  `json:"property_type,omitempty"`
	Amenities    string  `json:"amenities,omitempty"`
	Image        string  `json:"property_image,omitempty"`
	PGID         string  `json:"pg_id,omitempty"`
	PGNumber     string  `json:"pg_number,omitempty"`
	EazyPGID     string  `json:"eazypg_id,omitempty"`
	Link         string  `json:"property_link,omitempty"`
	MapURL       string  `json:"google_map,omitempty"`
	MatchScore   float64 `json:"match_score,omitempty"`
	DistanceM    float64 `json:"distance,omitempty"`
	Lat          float64 `json:"lat,omitempty"`
	Lng          float64 `json:"long,omitempty"`
	Phone        string  `json:"phone_number,omitempty"`
	MinToken     string  `json:"min_token_amount,omitempty"`
}

type PaymentInfo struct {
	PGName    string  `json:"pg_name"`
	PGID      string  `json:"pg_id"`
	PGNumber  string  `json:"pg_number"`
	Amount    float64 `json:"amount"`
	ShortLink string  `json:"short_link"`
}

// Identity is the name and gender returned by KYC verification.
type Identity struct {
	Name   string `json:"name"`
	Gender string `json:"gender"`
}

// Store reads and writes per-user state under "{user}:<name>" keys.
type Store struct {
	rdb redis.Cmdable
}

func NewStore(rdb redis.Cmdable) *Store {
	return &Store{rdb: rdb}
}

func key(userID, name string) string {
	return userID + ":" + name
}

func (s *Store) get(ctx context.Context, k string, v any) (bool, error) {
	raw, err := s.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", k, err)
	}
	return Decode(raw, v)
}

func (s *Store) set(ctx context.Context, k string, v any, ttl time.Duration) error {
	data, err := Encode(v)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, k, data, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", k, err)
	}
	return nil
}

func (s *Store) Preferences(ctx context.Context, userID string) (Preferences, error) {
	var p Preferences
	_, err := s.get(ctx, key(userID, "preferences"), &p)
	return p, err
}

// MergePreferences applies patch over the stored preferences and returns
// the merged result.
func (s *Store) MergePreferences(ctx context.Context, userID string, patch Preferences) (Preferences, error) {
	p, err := s.Preferences(ctx, userID)
	if err != nil {
		return Preferences{}, err
	}
	p.Merge(patch)
	if err := s.set(ctx, key(userID, "preferences"), p, 0); err != nil {
		return Preferences{}, err
	}
	return p, nil
}

func (s *Store) Properties(ctx context.Context, userID string) ([]Property, error) {
	var props []Property
	_, err := s.get(ctx, key(userID, "property_info_map"), &props)
	return props, err
}

// CacheProperties upserts props by ID into the user's search cache.
func (s *Store) CacheProperties(ctx context.Context, userID string, props []Property) error {
	existing, err := s.Properties(ctx, userID)
	if err != nil {
		return err
	}
	index := make(map[string]int, len(existing))
	for i, p := range existing {
		index[p.ID] = i
	}
	for _, p := range props {
		if i, ok := index[p.ID]; ok && p.ID != "" {
			existing[i] = p
			continue
		}
		index[p.ID] = len(existing)
		existing = append(existing, p)
	}
	return s.set(ctx, key(userID, "property_info_map"), existing, propertyCacheTTL)
}

// FindProperty returns the cached property with the given id or name.
func (s *Store) FindProperty(ctx context.Context, userID, idOrName string) (Property, bool, error) {
	props, err := s.Properties(ctx, userID)
	if err != nil {
		return Property{}, false, err
	}
	needle := strings.TrimSpace(idOrName)
	for _, p := range props {
		if p.ID == needle || strings.EqualFold(p.Name, needle) {
			return p, true, nil
		}
	}
	return Property{}, false, nil
}

func (s *Store) SetAccountValues(ctx context.Context, userID string, values map[string]any) error {
	return s.set(ctx, key(userID, "account_values"), values, 0)
}

func (s *Store) AccountValues(ctx context.Context, userID string) (map[string]any, error) {
	values := map[string]any{}
	_, err := s.get(ctx, key(userID, "account_values"), &values)
	return values, err
}

func (s *Store) SetPGIDs(ctx context.Context, userID string, ids []string) error {
	return s.set(ctx, key(userID, "pg_ids"), ids, 0)
}

func (s *Store) PGIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	_, err := s.get(ctx, key(userID, "pg_ids"), &ids)
	return ids, err
}

func (s *Store) SetPaymentInfo(ctx context.Context, userID string, info PaymentInfo) error {
	return s.set(ctx, key(userID, "payment_info"), info, 0)
}

func (s *Store) PaymentInfo(ctx context.Context, userID string) (PaymentInfo, bool, error) {
	var info PaymentInfo
	ok, err := s.get(ctx, key(userID, "payment_info"), &info)
	return info, ok, err
}

func (s *Store) ClearPaymentInfo(ctx context.Context, userID string) error {
	return s.rdb.Del(ctx, key(userID, "payment_info")).Err()
}

func (s *Store) SetIdentity(ctx context.Context, userID string, id Identity) error {
	return s.set(ctx, key(userID, "kyc_identity"), id, 0)
}

func (s *Store) Identity(ctx context.Context, userID string) (Identity, bool, error) {
	var id Identity
	ok, err := s.get(ctx, key(userID, "kyc_identity"), &id)
	return id, ok, err
}

func (s *Store) SetPhone(ctx context.Context, userID, phone string) error {
	return s.set(ctx, key(userID, "phone"), phone, 0)
}

func (s *Store) Phone(ctx context.Context, userID string) (string, error) {
	var phone string
	_, err := s.get(ctx, key(userID, "phone"), &phone)
	return phone, err
}

func (s *Store) SetLastAgent(ctx context.Context, userID, agent string) error {
	return s.set(ctx, key(userID, "last_agent"), agent, lastAgentTTL)
}

func (s *Store) LastAgent(ctx context.Context, userID string) (string, error) {
	var agent string
	_, err := s.get(ctx, key(userID, "last_agent"), &agent)
	return agent, err
}

func (s *Store) SetLanguage(ctx context.Context, userID, lang string) error {
	return s.set(ctx, key(userID, "language"), lang, 0)
}

func (s *Store) Language(ctx context.Context, userID string) (string, error) {
	var lang string
	_, err := s.get(ctx, key(userID, "language"), &lang)
	return lang, err
}

// MarkActive records message as the user's in-flight request and reports
// whether the same message was already seen within the dedup window.
func (s *Store) MarkActive(ctx context.Context, userID, message string) (bool, error) {
	k := key(userID, "active_request")
	var prev string
	if _, err := s.get(ctx, k, &prev); err != nil {
		return false, err
	}
	if prev == message {
		return true, nil
	}
	return false, s.set(ctx, k, message, dedupTTL)
}

// ClearActive ends the dedup window once a request has been answered.
func (s *Store) ClearActive(ctx context.Context, userID string) error {
	return s.rdb.Del(ctx, key(userID, "active_request")).Err()
}
