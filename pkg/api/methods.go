// JSON-RPC method handlers for the mirror API
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package api

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"time"

	"mirrorsim/pkg/config"
	"mirrorsim/pkg/mirror"
	"mirrorsim/pkg/pool"
)

// mirrorParams are the parameters shared by the mirror.* methods. Fields
// absent from the call keep the configured defaults.
type mirrorParams struct {
	Mirror string `json:"mirror"`

	ZenithAngle      float64 `json:"zenith_angle"`
	PreCompElevation float64 `json:"pre_comp_elevation"`
	TBulk            float64 `json:"t_bulk"`
	TxGrad           float64 `json:"tx_grad"`
	TyGrad           float64 `json:"ty_grad"`
	TzGrad           float64 `json:"tz_grad"`
	TrGrad           float64 `json:"tr_grad"`

	NumTerms int `json:"num_terms"`
	GridN    int `json:"grid_n"`

	// IncludeSamples adds the per-sample arrays to the result.
	IncludeSamples bool `json:"include_samples"`
}

func (p mirrorParams) observation() config.Observation {
	return config.Observation{
		ZenithAngleDeg:      p.ZenithAngle,
		PreCompElevationDeg: p.PreCompElevation,
		TBulk:               p.TBulk,
		TxGrad:              p.TxGrad,
		TyGrad:              p.TyGrad,
		TzGrad:              p.TzGrad,
		TrGrad:              p.TrGrad,
	}
}

// dispatchMethod routes a method call to the appropriate handler.
func (s *Server) dispatchMethod(ctx context.Context, method string, raw json.RawMessage) (any, error) {
	switch method {
	case "server.info":
		return s.methodServerInfo()
	case "mirror.list":
		return s.methodMirrorList()
	case "server.history.list", "server.history.get_job",
		"server.history.delete_job", "server.history.totals":
		return s.methodHistory(method, raw)
	case "mirror.net_surface", "mirror.fit_residual", "mirror.export_grid",
		"mirror.lut_force", "mirror.run":
	default:
		return nil, &rpcFailure{code: codeMethodNotFound, msg: "method not found: " + method}
	}

	p, sec, pipe, err := s.resolve(raw)
	if err != nil {
		return nil, err
	}
	switch method {
	case "mirror.net_surface":
		return s.methodNetSurface(ctx, p, pipe)
	case "mirror.fit_residual":
		return s.methodFitResidual(ctx, p, pipe)
	case "mirror.export_grid":
		return s.methodExportGrid(ctx, p, pipe)
	case "mirror.lut_force":
		return s.methodLUTForce(p, pipe)
	default:
		return s.methodRun(ctx, p, sec, pipe)
	}
}

// resolve decodes the parameters of a mirror.* call over the configured
// defaults of the mirror it names.
func (s *Server) resolve(raw json.RawMessage) (mirrorParams, config.MirrorSection, *mirror.Pipeline, error) {
	var named struct {
		Mirror string `json:"mirror"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &named); err != nil {
			return mirrorParams{}, config.MirrorSection{}, nil, invalidParams(err.Error())
		}
	}
	if named.Mirror == "" {
		if len(s.cfg.Mirrors) != 1 {
			return mirrorParams{}, config.MirrorSection{}, nil, invalidParams("missing 'mirror' parameter")
		}
		named.Mirror = s.cfg.Mirrors[0].Name
	}
	sec, ok := s.cfg.Mirror(named.Mirror)
	if !ok {
		return mirrorParams{}, config.MirrorSection{}, nil, invalidParams("unknown mirror: " + named.Mirror)
	}

	obs := s.cfg.Observation
	p := mirrorParams{
		Mirror:           sec.Name,
		ZenithAngle:      obs.ZenithAngleDeg,
		PreCompElevation: obs.PreCompElevationDeg,
		TBulk:            obs.TBulk,
		TxGrad:           obs.TxGrad,
		TyGrad:           obs.TyGrad,
		TzGrad:           obs.TzGrad,
		TrGrad:           obs.TrGrad,
		NumTerms:         sec.NumTerms,
		GridN:            sec.GridN,
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return mirrorParams{}, config.MirrorSection{}, nil, invalidParams(err.Error())
		}
		p.Mirror = sec.Name
	}
	return p, sec, s.pipelines[sec.Name], nil
}

func invalidParams(msg string) error {
	return &rpcFailure{code: codeInvalidParams, msg: msg}
}

// Method implementations

func (s *Server) methodServerInfo() (any, error) {
	hostname, _ := os.Hostname()

	s.wsClientMu.RLock()
	wsCount := len(s.wsClients)
	s.wsClientMu.RUnlock()

	names := make([]string, 0, len(s.cfg.Mirrors))
	for _, m := range s.cfg.Mirrors {
		names = append(names, m.Name)
	}

	result := pool.GetResultMap()
	result["version"] = Version
	result["hostname"] = hostname
	result["mirrors"] = names
	result["workers"] = s.cfg.Workers
	result["websocket_count"] = wsCount
	result["uptime_seconds"] = time.Since(s.startTime).Seconds()
	return result, nil
}

type mirrorInfo struct {
	Name     string                    `json:"name"`
	Kind     string                    `json:"kind"`
	Surfaces []string                  `json:"surfaces"`
	Radii    map[string]config.Annulus `json:"radii"`
	NumTerms int                       `json:"num_terms"`
	GridN    int                       `json:"grid_n"`
}

func (s *Server) methodMirrorList() (any, error) {
	list := make([]mirrorInfo, 0, len(s.cfg.Mirrors))
	for _, m := range s.cfg.Mirrors {
		surfaces := make([]string, 0, len(m.Radii))
		for name := range m.Radii {
			surfaces = append(surfaces, name)
		}
		sort.Strings(surfaces)
		list = append(list, mirrorInfo{
			Name:     m.Name,
			Kind:     m.Kind,
			Surfaces: surfaces,
			Radii:    m.Radii,
			NumTerms: m.NumTerms,
			GridN:    m.GridN,
		})
	}
	result := pool.GetResultMap()
	result["mirrors"] = list
	return result, nil
}

func (s *Server) methodNetSurface(ctx context.Context, p mirrorParams, pipe *mirror.Pipeline) (any, error) {
	field, err := pipe.ComputeNetSurface(ctx, mirror.ParamsFromObservation(p.observation()))
	if err != nil {
		return nil, err
	}
	result := pool.GetResultMap()
	result["mirror"] = p.Mirror
	result["samples"] = field.Len()
	result["pos_unit"] = field.PosUnit
	result["value_unit"] = field.ValueUnit
	if p.IncludeSamples {
		result["x"] = field.X
		result["y"] = field.Y
		result["z"] = field.Z
	}
	return result, nil
}

type residualInfo struct {
	Surface      string    `json:"surface"`
	Samples      int       `json:"samples"`
	RMS          float64   `json:"rms_um"`
	Coefficients []float64 `json:"coefficients"`
	X            []float64 `json:"x,omitempty"`
	Y            []float64 `json:"y,omitempty"`
	Z            []float64 `json:"z,omitempty"`
}

func (s *Server) residuals(ctx context.Context, p mirrorParams, pipe *mirror.Pipeline) ([]mirror.Residual, error) {
	field, err := pipe.ComputeNetSurface(ctx, mirror.ParamsFromObservation(p.observation()))
	if err != nil {
		return nil, err
	}
	return pipe.FitResidual(ctx, field, p.NumTerms)
}

func (s *Server) methodFitResidual(ctx context.Context, p mirrorParams, pipe *mirror.Pipeline) (any, error) {
	res, err := s.residuals(ctx, p, pipe)
	if err != nil {
		return nil, err
	}
	out := make([]residualInfo, 0, len(res))
	for _, r := range res {
		info := residualInfo{
			Surface:      r.Surface,
			Samples:      r.Field.Len(),
			RMS:          r.RMS,
			Coefficients: r.Coefficients,
		}
		if p.IncludeSamples {
			info.X, info.Y, info.Z = r.Field.X, r.Field.Y, r.Field.Z
		}
		out = append(out, info)
	}
	result := pool.GetResultMap()
	result["mirror"] = p.Mirror
	result["num_terms"] = p.NumTerms
	result["surfaces"] = out
	return result, nil
}

type gridInfo struct {
	Surface    string  `json:"surface"`
	NumX       int     `json:"num_x"`
	NumY       int     `json:"num_y"`
	PitchX     float64 `json:"pitch_x_mm"`
	PitchY     float64 `json:"pitch_y_mm"`
	ZeroFilled int     `json:"zero_filled"`
	// Nodes is row-major [value, dx, dy, dxdy] per node.
	Nodes [][4]float64 `json:"nodes,omitempty"`
}

func (s *Server) methodExportGrid(ctx context.Context, p mirrorParams, pipe *mirror.Pipeline) (any, error) {
	res, err := s.residuals(ctx, p, pipe)
	if err != nil {
		return nil, err
	}
	out := make([]gridInfo, 0, len(res))
	for _, r := range res {
		m, err := pipe.ExportGridMap(ctx, r, p.GridN, p.GridN)
		if err != nil {
			return nil, err
		}
		info := gridInfo{
			Surface:    r.Surface,
			NumX:       m.NumX,
			NumY:       m.NumY,
			PitchX:     m.PitchX,
			PitchY:     m.PitchY,
			ZeroFilled: m.ZeroFilled,
		}
		if p.IncludeSamples {
			info.Nodes = make([][4]float64, len(m.Nodes))
			for i, n := range m.Nodes {
				info.Nodes[i] = [4]float64{n.Value, n.DX, n.DY, n.DXDY}
			}
		}
		out = append(out, info)
	}
	result := pool.GetResultMap()
	result["mirror"] = p.Mirror
	result["surfaces"] = out
	return result, nil
}

func (s *Server) methodLUTForce(p mirrorParams, pipe *mirror.Pipeline) (any, error) {
	forces, err := pipe.LUTForces(p.ZenithAngle)
	if err != nil {
		return nil, err
	}
	result := pool.GetResultMap()
	result["mirror"] = p.Mirror
	result["zenith_angle"] = p.ZenithAngle
	result["forces"] = forces
	return result, nil
}

func (s *Server) methodRun(ctx context.Context, p mirrorParams, sec config.MirrorSection, pipe *mirror.Pipeline) (any, error) {
	req := mirror.RequestFromConfig(sec, p.observation())
	req.NumTerms = p.NumTerms
	req.GridN = p.GridN

	id := s.history.Start(p.Mirror, p)
	res, err := pipe.Run(ctx, req)
	s.history.Finish(id, res, err)
	if err != nil {
		return nil, err
	}
	if job, err := s.history.Get(id); err == nil {
		s.broadcast(jsonRPCNotification{
			JSONRPC: "2.0",
			Method:  "notify_run_complete",
			Params:  []any{job},
		})
	}
	result := pool.GetResultMap()
	result["job_id"] = id
	result["mirror"] = res.Mirror
	result["surfaces"] = res.Surfaces
	return result, nil
}

type historyParams struct {
	JobID string `json:"job_id"`
	Limit int    `json:"limit"`
	Start int    `json:"start"`
	Order string `json:"order"`
}

func (s *Server) methodHistory(method string, raw json.RawMessage) (any, error) {
	p := historyParams{Limit: 50, Order: "desc"}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, invalidParams(err.Error())
		}
	}
	result := pool.GetResultMap()
	switch method {
	case "server.history.list":
		jobs, count := s.history.List(p.Limit, p.Start, p.Order)
		result["count"] = count
		result["jobs"] = jobs
	case "server.history.get_job":
		job, err := s.history.Get(p.JobID)
		if err != nil {
			pool.PutResultMap(result)
			return nil, err
		}
		result["job"] = job
	case "server.history.delete_job":
		if err := s.history.Delete(p.JobID); err != nil {
			pool.PutResultMap(result)
			return nil, err
		}
		result["deleted_jobs"] = []string{p.JobID}
	default:
		result["job_totals"] = s.history.Totals()
	}
	return result, nil
}
