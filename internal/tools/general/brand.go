// Package general holds tools shared by the default agent.
package general

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aiox-platform/bookingbot/internal/rentok"
	"github.com/aiox-platform/bookingbot/internal/tools"
	"github.com/aiox-platform/bookingbot/internal/userstate"
)

const brandCacheTTL = 24 * time.Hour

type Service struct {
	api   *rentok.Client
	state *userstate.Store
	rdb   redis.Cmdable
}

func NewService(api *rentok.Client, state *userstate.Store, rdb redis.Cmdable) *Service {
	return &Service{api: api, state: state, rdb: rdb}
}

func (s *Service) Tools() []tools.Tool {
	return []tools.Tool{
		tools.New(tools.Schema{
			Name:        "brand_info",
			Description: "Operator-level information: rent range, token amount, amenities, address.",
			Params:      map[string]tools.Param{},
		}, s.BrandInfo),
	}
}

// brandKey is shared by every user of the same operator.
func brandKey(pgIDs []string) string {
	sum := md5.Sum([]byte(strings.Join(pgIDs, ",")))
	return "brand_info:" + hex.EncodeToString(sum[:])
}

func (s *Service) BrandInfo(ctx context.Context, inv tools.Invocation) (string, error) {
	pgIDs, err := s.state.PGIDs(ctx, inv.UserID)
	if err != nil {
		return "", err
	}
	if len(pgIDs) == 0 {
		return "Brand information not available.", nil
	}

	key := brandKey(pgIDs)
	cached, err := s.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		return cached, nil
	case !errors.Is(err, redis.Nil):
		slog.Warn("brand cache read failed", "error", err)
	}

	b, err := s.api.BrandInfo(ctx, pgIDs)
	if err != nil && !errors.Is(err, rentok.ErrNotFound) {
		return "", err
	}
	lines := brandLines(b)
	if len(lines) == 0 {
		return "No brand information found.", nil
	}
	out := "Brand & Property Information:\n" + strings.Join(lines, "\n")

	if err := s.rdb.Set(ctx, key, out, brandCacheTTL).Err(); err != nil {
		slog.Warn("brand cache write failed", "error", err)
	}
	return out, nil
}

func brandLines(b rentok.Brand) []string {
	var out []string
	add := func(label string, v rentok.Text) {
		if v != "" {
			out = append(out, fmt.Sprintf("- %s: %s", label, v))
		}
	}
	add("Rent Range", b.Rent)
	add("Token Amount", b.TokenAmount)
	add("Property Types", b.PropertyType)
	add("Tenants Preferred", b.TenantsPreferred)
	add("Unit Types", b.UnitTypes)
	add("Sharing Types", b.SharingTypes)
	add("Available For", b.Availability)
	add("Common Amenities", b.CommonAmenities)
	add("Special Amenities", b.UniqueAmenities)
	add("Services", b.ServicesAmenities)
	add("Emergency Stay Rate", b.EmergencyStay)
	add("Address", b.Address)
	return out
}
