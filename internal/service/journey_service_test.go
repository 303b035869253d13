package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"form-analytics-service/internal/apperr"
	"form-analytics-service/internal/model"
	"form-analytics-service/internal/testdata/kvtest"

	"github.com/stretchr/testify/suite"
)

type JourneyServiceTestSuite struct {
	suite.Suite

	service *journeyService
	ctx     context.Context
}

func TestJourneyServiceSuite(t *testing.T) {
	suite.Run(t, new(JourneyServiceTestSuite))
}

func (s *JourneyServiceTestSuite) SetupTest() {
	store, _ := kvtest.New(s.T())
	s.service = NewJourneyService(store).(*journeyService)
	s.service.now = func() time.Time { return time.Unix(1000, 0).UTC() }
	s.ctx = context.Background()
}

func (s *JourneyServiceTestSuite) TestTrackTouchpoint_Validation() {
	err := s.service.TrackTouchpoint(s.ctx, "", model.Touchpoint{Type: "page_view"})
	e, ok := apperr.As(err)
	s.Require().True(ok)
	s.Equal("customerId", e.Field)

	err = s.service.TrackTouchpoint(s.ctx, "c1", model.Touchpoint{})
	e, ok = apperr.As(err)
	s.Require().True(ok)
	s.Equal("type", e.Field)
}

func (s *JourneyServiceTestSuite) TestJourneyKeepsNewestHundred() {
	for i := 0; i < 150; i++ {
		s.Require().NoError(s.service.TrackTouchpoint(s.ctx, "c1", model.Touchpoint{
			Type:  fmt.Sprintf("step_%d", i),
			Value: 1,
		}))
	}

	journey, err := s.service.GetJourney(s.ctx, "c1")
	s.NoError(err)
	s.Require().Len(journey, MaxJourneyLength)
	s.Equal("step_50", journey[0].Type)
	s.Equal("step_149", journey[99].Type)
	s.Equal(time.Unix(1000, 0).UTC(), journey[0].Timestamp)
}

func (s *JourneyServiceTestSuite) TestCalculateValue() {
	s.Require().NoError(s.service.TrackTouchpoint(s.ctx, "c1", model.Touchpoint{Type: "form_view", FormID: "f1"}))
	s.Require().NoError(s.service.TrackTouchpoint(s.ctx, "c1", model.Touchpoint{Type: TouchpointFormSubmit, FormID: "f1", Value: 20}))
	s.Require().NoError(s.service.TrackTouchpoint(s.ctx, "c1", model.Touchpoint{Type: TouchpointFormSubmit, FormID: "f2", Value: 5.5}))

	value, err := s.service.CalculateValue(s.ctx, "c1")
	s.NoError(err)
	s.Equal(model.CustomerValue{CustomerID: "c1", TotalValue: 25.5, Submissions: 2, Touchpoints: 3}, value)

	empty, err := s.service.CalculateValue(s.ctx, "nobody")
	s.NoError(err)
	s.Equal(0, empty.Touchpoints)
}
