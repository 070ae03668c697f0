package leave_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

func TestCanTransition(t *testing.T) {
	states := []leave.State{
		leave.StatePending, leave.StateApproved, leave.StateRejected, leave.StateCancelled, leave.StateModified,
	}
	allowed := map[[2]leave.State]bool{
		{leave.StatePending, leave.StateApproved}:   true,
		{leave.StatePending, leave.StateRejected}:   true,
		{leave.StatePending, leave.StateCancelled}:  true,
		{leave.StatePending, leave.StateModified}:   true,
		{leave.StateApproved, leave.StateModified}:  true,
		{leave.StateModified, leave.StateApproved}:  true,
		{leave.StateModified, leave.StateRejected}:  true,
		{leave.StateModified, leave.StateModified}:  true,
	}

	for _, from := range states {
		for _, to := range states {
			assert.Equal(t, allowed[[2]leave.State{from, to}], leave.CanTransition(from, to), "%s -> %s", from, to)
		}
	}

	assert.True(t, leave.StateRejected.IsTerminal())
	assert.True(t, leave.StateCancelled.IsTerminal())
	assert.False(t, leave.StateModified.IsTerminal())
}

func TestChargeableDays(t *testing.T) {
	from := time.Date(2025, 2, 3, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		detail leave.Detail
		kind   leave.Kind
		want   string
	}{
		{
			name:   "vacation counts both ends",
			kind:   leave.KindVacation,
			detail: &leave.VacationDetail{FromDay: date(2025, 1, 6), ToDay: date(2025, 1, 10), ReturnDate: date(2025, 1, 13)},
			want:   "5",
		},
		{
			name:   "single day vacation",
			kind:   leave.KindVacation,
			detail: &leave.VacationDetail{FromDay: date(2025, 1, 6), ToDay: date(2025, 1, 6), ReturnDate: date(2025, 1, 7)},
			want:   "1",
		},
		{
			name:   "route pass uses hours",
			kind:   leave.KindRoutePass,
			detail: &leave.RoutePassDetail{FromTime: from, ToTime: from.Add(6 * time.Hour), Reason: leave.RoutePassPersonalMatter},
			want:   "0.75",
		},
		{
			name:   "permit without discount is free",
			kind:   leave.KindPermit,
			detail: &leave.PermitDetail{FromTime: from, ToTime: from.Add(4 * time.Hour), Reason: leave.PermitHealth},
			want:   "0",
		},
		{
			name: "permit with discount",
			kind: leave.KindPermit,
			detail: &leave.PermitDetail{
				FromTime: from, ToTime: from.Add(4 * time.Hour), Reason: leave.PermitHealth,
				DiscountEnabled: true, DiscountDays: dec("1"),
			},
			want: "0.5",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &leave.Request{EmployeeID: "emp-1", Kind: tt.kind, Detail: tt.detail}
			require.NoError(t, r.Validate())
			assertDecimal(t, tt.want, r.ChargeableDays())
		})
	}
}

func TestPermitDetail_DiscountDaysRequireFlag(t *testing.T) {
	from := time.Date(2025, 2, 3, 8, 0, 0, 0, time.UTC)
	d := &leave.PermitDetail{FromTime: from, ToTime: from.Add(time.Hour), Reason: leave.PermitOther, DiscountDays: dec("1")}

	assert.ErrorIs(t, d.Validate(), generic.ErrValidation)

	d.Reason = "vacation"
	d.DiscountDays = dec("0")
	assert.ErrorIs(t, d.Validate(), generic.ErrValidation)
}

func TestRequestJSON_KeepsDetailVariant(t *testing.T) {
	// GIVEN: A permit request
	from := time.Date(2025, 2, 3, 8, 0, 0, 0, time.UTC)
	in := &leave.Request{
		ID:         "r-1",
		EmployeeID: "emp-1",
		Kind:       leave.KindPermit,
		State:      leave.StateApproved,
		Detail: &leave.PermitDetail{
			FromTime: from, ToTime: from.Add(2 * time.Hour), Reason: leave.PermitOfficeMatters,
			DiscountEnabled: true, DiscountDays: dec("0.25"),
		},
		RefundAmount: dec("1.5"),
		Version:      3,
	}

	// WHEN: Encoding and decoding
	b, err := json.Marshal(in)
	require.NoError(t, err)
	var out leave.Request
	require.NoError(t, json.Unmarshal(b, &out))

	// THEN: The permit detail comes back as a permit
	d, ok := out.Detail.(*leave.PermitDetail)
	require.True(t, ok, "got %T", out.Detail)
	assert.True(t, d.FromTime.Equal(from))
	assert.True(t, d.DiscountEnabled)
	assertDecimal(t, "0.25", d.DiscountDays)
	assertDecimal(t, "1.5", out.RefundAmount)
	assert.EqualValues(t, 3, out.Version)
}

func TestDecodeDetail_VacationDates(t *testing.T) {
	d, err := leave.DecodeDetail(leave.KindVacation,
		[]byte(`{"from_day":"2025-01-06","to_day":"2025-01-10","return_date":"2025-01-13"}`))
	require.NoError(t, err)

	v := d.(*leave.VacationDetail)
	assert.Equal(t, 6, v.FromDay.Day())
	assertDecimal(t, "40", v.ElapsedHours())

	_, err = leave.DecodeDetail("sabbatical", []byte(`{}`))
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	d, err := leave.ParseDate("2025-01-06")
	require.NoError(t, err)
	assert.Equal(t, time.January, d.Month())

	d, err = leave.ParseDate("2025-01-06T10:30:00-05:00")
	require.NoError(t, err)
	assert.Equal(t, 6, d.Day())

	_, err = leave.ParseDate("06/01/2025")
	assert.Error(t, err)
}
