package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samirrijal/orchardscan/internal/core/domain"
	"github.com/samirrijal/orchardscan/internal/pkg/geospatial"
)

func gapsCmd(root *rootOptions) *cobra.Command {
	p := domain.DefaultDetectionParams()
	var method string
	var bufferMeters float64

	c := &cobra.Command{
		Use:   "gaps",
		Short: "Print likely positions of missing trees as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, id, err := root.service()
			if err != nil {
				return err
			}
			params := p
			params.BandwidthMethod = domain.BandwidthMethod(method)

			if cmd.Flags().Changed("inner-buffer-m") {
				if cmd.Flags().Changed("inner-buffer") {
					return fmt.Errorf("use only one of --inner-buffer and --inner-buffer-m")
				}
				// Summary runs the same provider fetch and gives us the
				// latitude the conversion depends on.
				sum, err := svc.Summary(cmd.Context(), id, params)
				if err != nil {
					return err
				}
				params.InnerBuffer = bufferDegrees(sum.Bounds.Center().Lat, bufferMeters)
			}

			resp, err := svc.MissingTrees(cmd.Context(), id, params)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), resp)
		},
	}

	f := c.Flags()
	f.IntVar(&p.NumPoints, "num-points", p.NumPoints, "grid points per axis")
	f.Float64Var(&p.Bandwidth, "bandwidth", p.Bandwidth, "KDE bandwidth factor (scalar method)")
	f.StringVar(&method, "bandwidth-method", string(p.BandwidthMethod), "scalar, scott or silverman")
	f.Float64Var(&p.ThresholdPercentile, "threshold-percentile", p.ThresholdPercentile, "density percentile a gap must fall below")
	f.Float64Var(&p.InnerBuffer, "inner-buffer", p.InnerBuffer, "boundary inset in degrees")
	f.Float64Var(&bufferMeters, "inner-buffer-m", 0, "boundary inset in meters, converted at the orchard's latitude")
	f.IntVar(&p.NeighborhoodSize, "neighborhood-size", p.NeighborhoodSize, "minimum filter window in grid cells")
	return c
}

// bufferDegrees converts a ground distance into a degree inset that is at
// least that many meters along both axes.
func bufferDegrees(lat, meters float64) float64 {
	dLat, dLng := geospatial.MetersToDegrees(lat, meters)
	return max(dLat, dLng)
}
