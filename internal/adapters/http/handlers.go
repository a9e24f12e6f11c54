package http

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/orchardscan/internal/core/domain"
)

// detectionParams overlays query-string overrides on the configured defaults.
// Unknown keys are ignored; malformed values are an error.
func detectionParams(c *fiber.Ctx, defaults domain.DetectionParams) (domain.DetectionParams, error) {
	p := defaults
	var errs []string

	intArg := func(key string, dst *int) {
		raw := c.Query(key)
		if raw == "" {
			return
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: not an integer: %q", key, raw))
			return
		}
		*dst = v
	}
	floatArg := func(key string, dst *float64) {
		raw := c.Query(key)
		if raw == "" {
			return
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: not a number: %q", key, raw))
			return
		}
		*dst = v
	}

	intArg("num_points", &p.NumPoints)
	floatArg("bandwidth", &p.Bandwidth)
	floatArg("threshold_percentile", &p.ThresholdPercentile)
	floatArg("inner_buffer", &p.InnerBuffer)
	intArg("neighborhood_size", &p.NeighborhoodSize)
	if m := c.Query("bandwidth_method"); m != "" {
		p.BandwidthMethod = domain.BandwidthMethod(m)
	}

	if len(errs) > 0 {
		return p, fmt.Errorf("%w: %s", domain.ErrInvalidParams, strings.Join(errs, "; "))
	}
	return p, nil
}

// orchardID reads the :id route parameter.
func orchardID(c *fiber.Ctx) (string, bool) {
	id := strings.TrimSpace(c.Params("id"))
	return id, id != ""
}

// served records the orchard for the access log.
func served(c *fiber.Ctx, id string) {
	c.Locals(localsOrchardID, id)
}

// MissingTreesHandler runs gap detection for the orchard in the path.
func MissingTreesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := orchardID(c)
		if !ok {
			return errBadRequest(c, "orchard id is required")
		}
		return missingTrees(c, deps, id)
	}
}

// UnhealthyTreesHandler runs NDRE outlier detection for the orchard in the path.
func UnhealthyTreesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := orchardID(c)
		if !ok {
			return errBadRequest(c, "orchard id is required")
		}
		return unhealthyTrees(c, deps, id)
	}
}

// SummaryHandler describes the orchard and its latest survey.
func SummaryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := orchardID(c)
		if !ok {
			return errBadRequest(c, "orchard id is required")
		}
		served(c, id)
		params, err := detectionParams(c, deps.Analysis.Defaults())
		if err != nil {
			return errFromDomain(c, err)
		}
		sum, err := deps.Analysis.Summary(c.UserContext(), id, params)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(sum)
	}
}

// LegacyMissingTreesHandler serves /detect_missing_trees for the configured
// default orchard.
func LegacyMissingTreesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.DefaultOrchardID == "" {
			return errNotFound(c, "no default orchard configured")
		}
		return missingTrees(c, deps, deps.DefaultOrchardID)
	}
}

// LegacyUnhealthyTreesHandler serves /detect_unhealthy_trees for the
// configured default orchard.
func LegacyUnhealthyTreesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.DefaultOrchardID == "" {
			return errNotFound(c, "no default orchard configured")
		}
		return unhealthyTrees(c, deps, deps.DefaultOrchardID)
	}
}

func missingTrees(c *fiber.Ctx, deps *Dependencies, id string) error {
	served(c, id)
	params, err := detectionParams(c, deps.Analysis.Defaults())
	if err != nil {
		return errFromDomain(c, err)
	}
	resp, err := deps.Analysis.MissingTrees(c.UserContext(), id, params)
	if err != nil {
		return errFromDomain(c, err)
	}
	return c.JSON(resp)
}

func unhealthyTrees(c *fiber.Ctx, deps *Dependencies, id string) error {
	served(c, id)
	resp, err := deps.Analysis.UnhealthyTrees(c.UserContext(), id)
	if err != nil {
		return errFromDomain(c, err)
	}
	return c.JSON(resp)
}
