package wire

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		line string
		want Frame
	}{
		{"WSOK", WSOK{}},
		{"CONOK,S1a2b,50000,5000,*", ConOK{SessionID: "S1a2b", RequestLimit: 50000, KeepAlive: 5 * time.Second, ControlLink: "*"}},
		{"CONERR,5,Requested%20Adapter%20Set%20not%20available", ConErr{Code: 5, Message: "Requested Adapter Set not available"}},
		{"END,31,closed", End{Code: 31, Message: "closed"}},
		{"ERROR,65,Malformed%2C%20request", Error{Code: 65, Message: "Malformed, request"}},
		{"LOOP,0", Loop{}},
		{"LOOP,200", Loop{Delay: 200 * time.Millisecond}},
		{"PROG,12", Prog{Progressive: 12}},
		{"PROBE", Probe{}},
		{"NOOP,preamble,with,commas", NoOp{Text: "preamble,with,commas"}},
		{"SYNC,30", Sync{Seconds: 30}},
		{"SERVNAME,Lightstreamer%20HTTP%20Server", ServName{Server: "Lightstreamer HTTP Server"}},
		{"CLIENTIP,10.0.0.4", ClientIP{IP: "10.0.0.4"}},
		{"CONS,unlimited", Cons{Bandwidth: "unlimited"}},
		{"REQOK,7", ReqOK{ReqID: 7}},
		{"REQOK", ReqOK{}},
		{"REQERR,8,17,bad%20item", ReqErr{ReqID: 8, Code: 17, Message: "bad item"}},
		{"SUBOK,1,2,3", SubOK{SubID: 1, Items: 2, Fields: 3}},
		{"SUBCMD,2,1,4,1,2", SubCmd{SubID: 2, Items: 1, Fields: 4, KeyPos: 1, CmdPos: 2}},
		{"UNSUB,3", Unsub{SubID: 3}},
		{"U,1,1,a|b", Update{SubID: 1, Item: 1, Values: "a|b"}},
		{"U,1,2,", Update{SubID: 1, Item: 2, Values: ""}},
		{"EOS,1,2", EOS{SubID: 1, Item: 2}},
		{"CS,1,2", CS{SubID: 1, Item: 2}},
		{"OV,1,2,15", OV{SubID: 1, Item: 2, Lost: 15}},
		{"CONF,4,12.5,filtered", Conf{SubID: 4, Frequency: Frequency{Value: 12.5}, Filtered: true}},
		{"CONF,4,unlimited,unfiltered", Conf{SubID: 4, Frequency: UnlimitedFrequency}},
		{"MPNREG,devid,adapter", MPNReg{DeviceID: "devid", Adapter: "adapter"}},
		{"MPNOK,5,mpnsub1", MPNOK{SubID: 5, SubscriptionID: "mpnsub1"}},
		{"MPNDEL,mpnsub1", MPNDel{SubscriptionID: "mpnsub1"}},
		{"MPNZERO,devid", MPNZero{DeviceID: "devid"}},
		{"MSGDONE,*,1,", Unknown{Tag: "MSGDONE", Line: "MSGDONE,*,1,"}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseFrame(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFrame_Malformed(t *testing.T) {
	lines := []string{
		"",
		"CONOK",
		"CONOK,S1,abc,5000,*",
		"REQOK,x",
		"REQERR,1",
		"SUBOK,1,2",
		"U,1",
		"U,x,1,a",
		"CONF,1,fast,filtered",
		"CONF,1,3,maybe",
		"OV,1,2",
		"PROG",
		"CONERR,5,%zz",
	}

	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			f, err := ParseFrame(line)
			assert.Nil(t, f)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedFrame))
		})
	}
}

func TestIsDataNotification(t *testing.T) {
	data := []Frame{Update{}, EOS{}, CS{}, OV{}, Conf{}, Unsub{}, SubOK{}, SubCmd{}, MPNReg{}, MPNOK{}, MPNDel{}, MPNZero{}}
	for _, f := range data {
		assert.True(t, IsDataNotification(f), f.Name())
	}

	other := []Frame{WSOK{}, ConOK{}, ReqOK{}, ReqErr{}, Loop{}, Prog{}, Probe{}, NoOp{}, Sync{}, End{}, Unknown{Tag: "X"}}
	for _, f := range other {
		assert.False(t, IsDataNotification(f), f.Name())
	}
}

func TestFrequency(t *testing.T) {
	f, err := ParseFrequency("2.5")
	require.NoError(t, err)
	assert.Equal(t, "2.5", f.String())

	_, err = ParseFrequency("-1")
	assert.Error(t, err)

	assert.True(t, f.Less(UnlimitedFrequency))
	assert.False(t, UnlimitedFrequency.Less(f))
	assert.True(t, Frequency{Value: 1}.Less(f))
	assert.True(t, UnlimitedFrequency.Equal(Frequency{Unlimited: true}))
	assert.False(t, f.Equal(UnlimitedFrequency))
	assert.Equal(t, "unlimited", UnlimitedFrequency.String())
}
