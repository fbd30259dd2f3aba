package speech

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/verte-zerg/readaloud/internal/model"
)

func TestNewCommandEmpty(t *testing.T) {
	if _, err := NewCommand("   ", nil); !errors.Is(err, ErrNoCommand) {
		t.Fatalf("err = %v, want ErrNoCommand", err)
	}
}

func TestCommandArgs(t *testing.T) {
	cmd, err := NewCommand(DefaultCommand, map[model.Language]string{model.Filipino: "fil"})
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	got := cmd.Args("Magandang umaga", model.Filipino)
	want := []string{"-v", "fil", "Magandang umaga"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("args = %q, want %q", got, want)
	}
	got = cmd.Args("Good morning", model.English)
	want = []string{"-v", "en-us", "Good morning"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("args = %q, want %q", got, want)
	}
}

func TestCommandAppendsTextWithoutPlaceholder(t *testing.T) {
	cmd, err := NewCommand("say -r 160", nil)
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	got := cmd.Args("hello", model.English)
	want := []string{"-r", "160", "hello"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("args = %q, want %q", got, want)
	}
}

func TestCommandSpeakMissingBinary(t *testing.T) {
	cmd, err := NewCommand("readaloud-no-such-tts-binary", nil)
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	if err := cmd.Speak(context.Background(), "hello", model.English); err == nil {
		t.Fatalf("expected error for missing binary")
	}
	if err := cmd.Speak(context.Background(), "  ", model.English); err != nil {
		t.Fatalf("blank prompt should be a no-op, got %v", err)
	}
}

func TestNop(t *testing.T) {
	var s Speaker = Nop{}
	if err := s.Speak(context.Background(), "anything", model.English); err != nil {
		t.Fatalf("nop speak: %v", err)
	}
}
