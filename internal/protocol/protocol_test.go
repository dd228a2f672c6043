package protocol

import (
	"errors"
	"testing"

	"github.com/ayusman/camscroll/internal/gesture"
)

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		check   func(t *testing.T, c Command)
	}{
		{
			name:  "train down",
			input: `{"train":"down"}`,
			check: func(t *testing.T, c Command) {
				if c.Train == nil || *c.Train != gesture.OptionDown {
					t.Errorf("Train = %v, want down", c.Train)
				}
			},
		},
		{
			name:  "train save",
			input: `{"train":"save"}`,
			check: func(t *testing.T, c Command) {
				if c.Train == nil || *c.Train != gesture.OptionSave {
					t.Errorf("Train = %v, want save", c.Train)
				}
			},
		},
		{
			name:  "infer false",
			input: `{"infer":false}`,
			check: func(t *testing.T, c Command) {
				if c.Infer == nil || *c.Infer {
					t.Errorf("Infer = %v, want false", c.Infer)
				}
			},
		},
		{
			name:  "reset",
			input: `{"reset":true}`,
			check: func(t *testing.T, c Command) {
				if c.Reset == nil || !*c.Reset {
					t.Errorf("Reset = %v, want true", c.Reset)
				}
			},
		},
		{name: "empty object", input: `{}`, wantErr: true},
		{name: "two fields", input: `{"train":"up","infer":true}`, wantErr: true},
		{name: "unknown option", input: `{"train":"left"}`, wantErr: true},
		{name: "reset false", input: `{"reset":false}`, wantErr: true},
		{name: "not json", input: `train=up`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := DecodeCommand([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCommand) {
					t.Errorf("expected ErrInvalidCommand, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeCommand() error = %v", err)
			}
			tt.check(t, c)
		})
	}
}

func TestCommand_String(t *testing.T) {
	if got := Train(gesture.OptionUp).String(); got != `{"train":"up"}` {
		t.Errorf("String() = %s", got)
	}
	if got := Infer(false).String(); got != `{"infer":false}` {
		t.Errorf("String() = %s", got)
	}
	if got := Reset().String(); got != `{"reset":true}` {
		t.Errorf("String() = %s", got)
	}
}

func TestDecodeActuation(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Actuation
		wantErr bool
	}{
		{name: "off", input: `{"off":true}`, want: Actuation{Off: true}},
		{name: "on down", input: `{"on":{"direction":"down"}}`, want: Start(gesture.DirectionDown)},
		{name: "off and on", input: `{"off":true,"on":{"direction":"up"}}`, want: Actuation{Off: true, On: &On{Direction: gesture.DirectionUp}}},
		{name: "empty", input: `{}`, wantErr: true},
		{name: "bad direction", input: `{"on":{"direction":"left"}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := DecodeActuation([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidActuation) {
					t.Errorf("expected ErrInvalidActuation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeActuation() error = %v", err)
			}
			if a.Off != tt.want.Off {
				t.Errorf("Off = %v, want %v", a.Off, tt.want.Off)
			}
			if (a.On == nil) != (tt.want.On == nil) {
				t.Fatalf("On = %v, want %v", a.On, tt.want.On)
			}
			if a.On != nil && a.On.Direction != tt.want.On.Direction {
				t.Errorf("Direction = %q, want %q", a.On.Direction, tt.want.On.Direction)
			}
		})
	}
}
