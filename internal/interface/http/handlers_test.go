package httpservice_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/internal/core/application"
	"github.com/ftso-network/ftso/internal/core/domain"
	httpservice "github.com/ftso-network/ftso/internal/interface/http"
	"github.com/ftso-network/ftso/pkg/amount"
	"github.com/ftso-network/ftso/pkg/rewards"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockedAppService struct {
	mock.Mock
}

func (m *mockedAppService) Start() error { return nil }
func (m *mockedAppService) Stop()        {}

func (m *mockedAppService) GetStatus(ctx context.Context) (*application.Status, error) {
	args := m.Called(ctx)
	var res *application.Status
	if a := args.Get(0); a != nil {
		res = a.(*application.Status)
	}
	return res, args.Error(1)
}

func (m *mockedAppService) GetRound(ctx context.Context, round uint64) (*domain.Round, error) {
	args := m.Called(ctx, round)
	var res *domain.Round
	if a := args.Get(0); a != nil {
		res = a.(*domain.Round)
	}
	return res, args.Error(1)
}

func (m *mockedAppService) GetRoundResults(
	ctx context.Context, round uint64,
) (*domain.RoundResults, error) {
	args := m.Called(ctx, round)
	var res *domain.RoundResults
	if a := args.Get(0); a != nil {
		res = a.(*domain.RoundResults)
	}
	return res, args.Error(1)
}

func (m *mockedAppService) GetFinalization(
	ctx context.Context, scope string, id uint64,
) (*domain.Finalization, error) {
	args := m.Called(ctx, scope, id)
	var res *domain.Finalization
	if a := args.Get(0); a != nil {
		res = a.(*domain.Finalization)
	}
	return res, args.Error(1)
}

func (m *mockedAppService) GetClaims(
	ctx context.Context, rewardEpoch uint64, beneficiary *common.Address,
) (*application.ClaimsInfo, error) {
	args := m.Called(ctx, rewardEpoch, beneficiary)
	var res *application.ClaimsInfo
	if a := args.Get(0); a != nil {
		res = a.(*application.ClaimsInfo)
	}
	return res, args.Error(1)
}

var (
	voter       = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	beneficiary = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	root        = common.HexToHash("0x01")
)

func newRouter(svc application.Service) *mux.Router {
	router := mux.NewRouter()
	httpservice.NewHandler(svc).RegisterRoutes(router)
	return router
}

func doGet(t *testing.T, router http.Handler, path string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	body := make(map[string]interface{})
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestGetStatus(t *testing.T) {
	svc := &mockedAppService{}
	last := uint64(41)
	svc.On("GetStatus", mock.Anything).Return(&application.Status{
		Address:            voter.Hex(),
		CurrentRound:       42,
		CurrentRewardEpoch: 3,
		LastProcessedRound: &last,
		Feeds:              []string{"BTC-USD"},
	}, nil)

	code, body := doGet(t, newRouter(svc), "/v1/status")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, voter.Hex(), body["address"])
	require.Equal(t, float64(42), body["currentRound"])
	require.Equal(t, float64(41), body["lastProcessedRound"])
	require.NotContains(t, body, "roundWatermark")
}

func TestGetRound(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		svc := &mockedAppService{}
		round := domain.NewRound(7, 1)
		round.MerkleRoot = root
		svc.On("GetRound", mock.Anything, uint64(7)).Return(round, nil)

		code, body := doGet(t, newRouter(svc), "/v1/rounds/7")
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, float64(7), body["round"])
		require.Equal(t, root.Hex(), body["merkleRoot"])
		require.NotContains(t, body, "finalizer")
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := []struct {
			name         string
			path         string
			err          error
			expectedCode int
		}{
			{
				name:         "malformed round",
				path:         "/v1/rounds/abc",
				expectedCode: http.StatusBadRequest,
			},
			{
				name:         "unknown round",
				path:         "/v1/rounds/8",
				err:          domain.ErrRoundNotFound,
				expectedCode: http.StatusNotFound,
			},
			{
				name:         "store failure",
				path:         "/v1/rounds/9",
				err:          fmt.Errorf("disk full"),
				expectedCode: http.StatusInternalServerError,
			},
		}

		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				svc := &mockedAppService{}
				svc.On("GetRound", mock.Anything, mock.Anything).Return(nil, f.err)

				code, body := doGet(t, newRouter(svc), f.path)
				require.Equal(t, f.expectedCode, code)
				require.NotEmpty(t, body["error"])
			})
		}
	})
}

func TestGetRoundResults(t *testing.T) {
	svc := &mockedAppService{}
	svc.On("GetRoundResults", mock.Anything, uint64(5)).Return(&domain.RoundResults{
		Round:      5,
		MerkleRoot: root,
		Random:     amount.New(9),
		Results: []domain.FeedResult{
			{
				Round:            5,
				FeedId:           "BTC-USD",
				Voters:           []common.Address{voter},
				Prices:           []uint32{100},
				Weights:          []amount.Amount{amount.New(10)},
				FinalMedianPrice: 100,
				Quartile1Price:   100,
				Quartile3Price:   100,
			},
		},
	}, nil)

	code, body := doGet(t, newRouter(svc), "/v1/rounds/5/results")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "9", body["random"])

	results := body["results"].([]interface{})
	require.Len(t, results, 1)
	result := results[0].(map[string]interface{})
	require.Equal(t, "BTC-USD", result["feedId"])
	require.Equal(t, float64(100), result["medianPrice"])
	require.Equal(t, []interface{}{"10"}, result["weights"])
}

func TestGetFinalization(t *testing.T) {
	svc := &mockedAppService{}
	svc.On("GetFinalization", mock.Anything, domain.FinalizationScopeRound, uint64(5)).
		Return(&domain.Finalization{
			Scope:     domain.FinalizationScopeRound,
			Id:        5,
			Root:      root,
			Finalizer: voter,
			Timestamp: 1000,
		}, nil)
	svc.On("GetFinalization", mock.Anything, domain.FinalizationScopeRewardEpoch, uint64(2)).
		Return(nil, fmt.Errorf("finalization: %w", domain.ErrNotFound))

	router := newRouter(svc)

	code, body := doGet(t, router, "/v1/rounds/5/finalization")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, root.Hex(), body["root"])
	require.Equal(t, voter.Hex(), body["finalizer"])

	code, _ = doGet(t, router, "/v1/reward-epochs/2/finalization")
	require.Equal(t, http.StatusNotFound, code)
}

func TestGetClaims(t *testing.T) {
	claims := &application.ClaimsInfo{
		RewardEpoch: 2,
		MerkleRoot:  root,
		Claims: []application.ClaimWithProof{
			{
				Claim: rewards.Claim{
					Type:        rewards.ClaimTypeWeighted,
					Beneficiary: beneficiary,
					Amount:      amount.New(500),
				},
				Proof: []common.Hash{root},
			},
		},
	}

	t.Run("all", func(t *testing.T) {
		svc := &mockedAppService{}
		svc.On("GetClaims", mock.Anything, uint64(2), (*common.Address)(nil)).Return(claims, nil)

		code, body := doGet(t, newRouter(svc), "/v1/reward-epochs/2/claims")
		require.Equal(t, http.StatusOK, code)
		list := body["claims"].([]interface{})
		require.Len(t, list, 1)
		claim := list[0].(map[string]interface{})
		require.Equal(t, "500", claim["amount"])
		require.Equal(t, beneficiary.Hex(), claim["beneficiary"])
	})

	t.Run("by beneficiary", func(t *testing.T) {
		svc := &mockedAppService{}
		svc.On("GetClaims", mock.Anything, uint64(2), &beneficiary).Return(claims, nil)

		code, _ := doGet(t, newRouter(svc), "/v1/reward-epochs/2/claims?beneficiary="+beneficiary.Hex())
		require.Equal(t, http.StatusOK, code)
		svc.AssertExpectations(t)
	})

	t.Run("invalid beneficiary", func(t *testing.T) {
		svc := &mockedAppService{}
		code, body := doGet(t, newRouter(svc), "/v1/reward-epochs/2/claims?beneficiary=nope")
		require.Equal(t, http.StatusBadRequest, code)
		require.Contains(t, body["error"], "invalid beneficiary")
		svc.AssertNotCalled(t, "GetClaims", mock.Anything, mock.Anything, mock.Anything)
	})
}
