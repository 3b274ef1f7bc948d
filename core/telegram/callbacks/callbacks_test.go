package callbacks

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name    string
		cb      *tele.Callback
		unique  string
		payload string
	}{
		{"nil", nil, "", ""},
		{"unique set", &tele.Callback{Unique: "qty", Data: "3"}, "qty", "3"},
		{"raw encoded", &tele.Callback{Data: "\fqty|custom"}, "qty", "custom"},
		{"raw no payload", &tele.Callback{Data: "\fstart_order"}, "start_order", ""},
		{"plain data", &tele.Callback{Data: "qty|2"}, "qty", "2"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			unique, payload := Parse(c.cb)
			if unique != c.unique || payload != c.payload {
				t.Fatalf("Parse = (%q, %q), want (%q, %q)", unique, payload, c.unique, c.payload)
			}
		})
	}
}
