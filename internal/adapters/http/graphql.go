package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/orchardscan/internal/core/domain"
)

// detectionArgs are the optional overrides accepted by missingTrees and
// orchardSummary.
var detectionArgs = graphql.FieldConfigArgument{
	"orchardId":           &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
	"numPoints":           &graphql.ArgumentConfig{Type: graphql.Int},
	"bandwidth":           &graphql.ArgumentConfig{Type: graphql.Float},
	"bandwidthMethod":     &graphql.ArgumentConfig{Type: graphql.String},
	"thresholdPercentile": &graphql.ArgumentConfig{Type: graphql.Float},
	"innerBuffer":         &graphql.ArgumentConfig{Type: graphql.Float},
	"neighborhoodSize":    &graphql.ArgumentConfig{Type: graphql.Int},
}

// paramsFromArgs overlays the GraphQL arguments on the defaults.
func paramsFromArgs(args map[string]interface{}, defaults domain.DetectionParams) domain.DetectionParams {
	p := defaults
	if v, ok := args["numPoints"].(int); ok {
		p.NumPoints = v
	}
	if v, ok := args["bandwidth"].(float64); ok {
		p.Bandwidth = v
	}
	if v, ok := args["bandwidthMethod"].(string); ok {
		p.BandwidthMethod = domain.BandwidthMethod(v)
	}
	if v, ok := args["thresholdPercentile"].(float64); ok {
		p.ThresholdPercentile = v
	}
	if v, ok := args["innerBuffer"].(float64); ok {
		p.InnerBuffer = v
	}
	if v, ok := args["neighborhoodSize"].(int); ok {
		p.NeighborhoodSize = v
	}
	return p
}

// buildSchema creates the GraphQL schema wired to the analysis service.
// Fields resolve through the domain types' json tags.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	coordinateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Coordinate",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	boundsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Bounds",
		Fields: graphql.Fields{
			"min_lat": &graphql.Field{Type: graphql.Float},
			"max_lat": &graphql.Field{Type: graphql.Float},
			"min_lng": &graphql.Field{Type: graphql.Float},
			"max_lng": &graphql.Field{Type: graphql.Float},
		},
	})

	summaryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "OrchardSummary",
		Fields: graphql.Fields{
			"orchard_id":         &graphql.Field{Type: graphql.String},
			"vertices":           &graphql.Field{Type: graphql.Int},
			"trees":              &graphql.Field{Type: graphql.Int},
			"area_deg2":          &graphql.Field{Type: graphql.Float},
			"width_m":            &graphql.Field{Type: graphql.Float},
			"height_m":           &graphql.Field{Type: graphql.Float},
			"mean_ndre":          &graphql.Field{Type: graphql.Float},
			"stddev_ndre":        &graphql.Field{Type: graphql.Float},
			"inner_region_empty": &graphql.Field{Type: graphql.Boolean},
			"bounds":             &graphql.Field{Type: boundsType},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"missingTrees": &graphql.Field{
				Type:        graphql.NewList(coordinateType),
				Description: "Likely positions of missing trees",
				Args:        detectionArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["orchardId"].(string)
					params := paramsFromArgs(p.Args, deps.Analysis.Defaults())
					resp, err := deps.Analysis.MissingTrees(p.Context, id, params)
					if err != nil {
						return nil, err
					}
					return resp.MissingTrees, nil
				},
			},
			"unhealthyTrees": &graphql.Field{
				Type:        graphql.NewList(coordinateType),
				Description: "Positions of trees with unusually low NDRE",
				Args: graphql.FieldConfigArgument{
					"orchardId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["orchardId"].(string)
					resp, err := deps.Analysis.UnhealthyTrees(p.Context, id)
					if err != nil {
						return nil, err
					}
					return resp.UnhealthyTrees, nil
				},
			},
			"orchardSummary": &graphql.Field{
				Type:        summaryType,
				Description: "Polygon and survey statistics for an orchard",
				Args:        detectionArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["orchardId"].(string)
					params := paramsFromArgs(p.Args, deps.Analysis.Defaults())
					return deps.Analysis.Summary(p.Context, id, params)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Query == "" {
			return errBadRequest(c, "query is required")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		c.Set(fiber.HeaderCacheControl, "private, max-age=0")
		return c.JSON(result)
	}
}
