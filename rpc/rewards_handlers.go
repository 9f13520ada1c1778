package rpc

import "net/http"

type healthDataParams struct {
	Caller          string `json:"caller"`
	User            string `json:"user"`
	Steps           uint64 `json:"steps"`
	GoodSleep       bool   `json:"goodSleep"`
	ExerciseMinutes uint64 `json:"exerciseMinutes"`
}

type submitResult struct {
	User   string `json:"user"`
	Reward string `json:"reward"`
}

func (s *Server) handleRewardsSubmitHealthData(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params healthDataParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	user, err := parseAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	reward, err := s.services.Rewards.SubmitHealthData(caller, user, params.Steps, params.GoodSleep, params.ExerciseMinutes)
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, submitResult{User: user.Hex(), Reward: reward.String()})
}

func (s *Server) handleRewardsSubmitSelfReported(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params healthDataParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	user, err := parseAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	reward, err := s.services.Rewards.SubmitSelfReportedData(user, params.Steps, params.GoodSleep, params.ExerciseMinutes)
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, submitResult{User: user.Hex(), Reward: reward.String()})
}

type dailyAggregateResult struct {
	Day                  uint64 `json:"day"`
	TotalSteps           uint64 `json:"totalSteps"`
	TotalSleepMinutes    uint64 `json:"totalSleepMinutes"`
	TotalExerciseMinutes uint64 `json:"totalExerciseMinutes"`
	EntryCount           uint64 `json:"entryCount"`
	Exists               bool   `json:"exists"`
}

func (s *Server) handleRewardsGetDailyAggregate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Day uint64 `json:"day"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	aggregate, exists, err := s.services.Rewards.GetDailyAggregate(params.Day)
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, dailyAggregateResult{
		Day:                  params.Day,
		TotalSteps:           aggregate.TotalSteps,
		TotalSleepMinutes:    aggregate.TotalSleepMinutes,
		TotalExerciseMinutes: aggregate.TotalExerciseMinutes,
		EntryCount:           aggregate.EntryCount,
		Exists:               exists,
	})
}

type rangeParams struct {
	StartDay uint64 `json:"startDay"`
	EndDay   uint64 `json:"endDay"`
}

func (s *Server) handleRewardsGetRange(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params rangeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	aggregate, err := s.services.Rewards.GetAggregatedDataForRange(params.StartDay, params.EndDay)
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, rangeAggregateResult{
		StartDay:             aggregate.StartDay,
		EndDay:               aggregate.EndDay,
		TotalSteps:           aggregate.TotalSteps,
		TotalSleepMinutes:    aggregate.TotalSleepMinutes,
		TotalExerciseMinutes: aggregate.TotalExerciseMinutes,
		TotalEntries:         aggregate.TotalEntries,
		UniqueDays:           aggregate.UniqueDays,
	})
}

type rangeAggregateResult struct {
	StartDay             uint64 `json:"startDay"`
	EndDay               uint64 `json:"endDay"`
	TotalSteps           uint64 `json:"totalSteps"`
	TotalSleepMinutes    uint64 `json:"totalSleepMinutes"`
	TotalExerciseMinutes uint64 `json:"totalExerciseMinutes"`
	TotalEntries         uint64 `json:"totalEntries"`
	UniqueDays           uint64 `json:"uniqueDays"`
}

type averageMetricsResult struct {
	AverageSteps           uint64 `json:"averageSteps"`
	AverageSleepMinutes    uint64 `json:"averageSleepMinutes"`
	AverageExerciseMinutes uint64 `json:"averageExerciseMinutes"`
	TotalEntries           uint64 `json:"totalEntries"`
	UniqueDays             uint64 `json:"uniqueDays"`
}

func (s *Server) handleRewardsGetAverages(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params rangeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	averages, err := s.services.Rewards.GetAverageMetricsForRange(params.StartDay, params.EndDay)
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, averageMetricsResult{
		AverageSteps:           averages.AverageSteps,
		AverageSleepMinutes:    averages.AverageSleepMinutes,
		AverageExerciseMinutes: averages.AverageExerciseMinutes,
		TotalEntries:           averages.TotalEntries,
		UniqueDays:             averages.UniqueDays,
	})
}

type rewardParamsResult struct {
	StepsRate     string `json:"stepsRate"`
	SleepRate     string `json:"sleepRate"`
	ExerciseRate  string `json:"exerciseRate"`
	TrustedOracle string `json:"trustedOracle"`
}

func (s *Server) handleRewardsGetParams(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	params, err := s.services.Rewards.GetParams()
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, rewardParamsResult{
		StepsRate:     params.StepsRate.String(),
		SleepRate:     params.SleepRate.String(),
		ExerciseRate:  params.ExerciseRate.String(),
		TrustedOracle: params.TrustedOracle.Hex(),
	})
}

func (s *Server) handleRewardsUpdateOracle(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller string `json:"caller"`
		Oracle string `json:"oracle"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	oracle, err := parseAddress(params.Oracle)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.services.Rewards.UpdateOracle(caller, oracle); err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleRewardsUpdateRates(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller       string `json:"caller"`
		StepsRate    string `json:"stepsRate"`
		SleepRate    string `json:"sleepRate"`
		ExerciseRate string `json:"exerciseRate"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	stepsRate, err := parseAmount(params.StepsRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	sleepRate, err := parseAmount(params.SleepRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	exerciseRate, err := parseAmount(params.ExerciseRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.services.Rewards.UpdateRewardRates(caller, stepsRate, sleepRate, exerciseRate); err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}
