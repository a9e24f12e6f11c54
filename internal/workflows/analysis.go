package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/orchardscan/internal/core/domain"
)

// AnalysisInput is the input for the orchard analysis workflow.
type AnalysisInput struct {
	OrchardID string
	SurveyID  string
	Params    *domain.DetectionParams // nil = worker defaults
}

// AnalysisResult reports both detectors. A detector that failed leaves its
// points empty and its error message set.
type AnalysisResult struct {
	OrchardID      string
	SurveyID       string
	MissingTrees   []domain.GapCandidate
	UnhealthyTrees []domain.UnhealthyTree
	GapsError      string `json:",omitempty"`
	HealthError    string `json:",omitempty"`
}

// WorkflowID is the ID used for the analysis of one survey, so a redelivered
// import event does not start a second run.
func WorkflowID(orchardID, surveyID string) string {
	return "orchard-analysis-" + orchardID + "-" + surveyID
}

// OrchardAnalysisWorkflow refreshes cached orchard data, then runs gap and
// outlier detection concurrently. It fails only when both detectors fail.
func OrchardAnalysisWorkflow(ctx workflow.Context, input AnalysisInput) (*AnalysisResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting orchard analysis", "orchardID", input.OrchardID, "surveyID", input.SurveyID)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	// Step 1: drop stale provider data
	if err := workflow.ExecuteActivity(ctx, ActivityRefreshOrchard, input.OrchardID).Get(ctx, nil); err != nil {
		return nil, err
	}

	// Step 2: both detectors in parallel
	gapsF := workflow.ExecuteActivity(ctx, ActivityDetectMissingTrees, input.OrchardID, input.Params)
	healthF := workflow.ExecuteActivity(ctx, ActivityDetectUnhealthy, input.OrchardID)

	result := &AnalysisResult{OrchardID: input.OrchardID, SurveyID: input.SurveyID}
	gapsErr := gapsF.Get(ctx, &result.MissingTrees)
	if gapsErr != nil {
		logger.Warn("gap detection failed", "error", gapsErr)
		result.GapsError = gapsErr.Error()
	}
	healthErr := healthF.Get(ctx, &result.UnhealthyTrees)
	if healthErr != nil {
		logger.Warn("outlier detection failed", "error", healthErr)
		result.HealthError = healthErr.Error()
	}
	if gapsErr != nil && healthErr != nil {
		return result, gapsErr
	}

	logger.Info("Orchard analysis finished",
		"missingTrees", len(result.MissingTrees),
		"unhealthyTrees", len(result.UnhealthyTrees))
	return result, nil
}
