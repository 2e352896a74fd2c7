package inference_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"roastmachine/internal/inference"
	"roastmachine/internal/services"
	"roastmachine/internal/services/whisperx"
)

type fakeCompleter struct {
	response  string
	err       error
	system    string
	prompt    string
	jsonCalls int
	textCalls int
}

func (f *fakeCompleter) CompleteJSON(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	f.jsonCalls++
	f.system, f.prompt = systemPrompt, userPrompt
	return f.response, f.err
}

func (f *fakeCompleter) CompleteText(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	f.textCalls++
	f.system, f.prompt = systemPrompt, userPrompt
	return f.response, f.err
}

func TestLLMSongIdentifier(t *testing.T) {
	client := &fakeCompleter{response: `{"detectedSong": "Hello by Adele", "confidence": 0.9, "accuracy": 0.8}`}
	identifier := inference.NewLLMSongIdentifier(client)

	match, err := identifier.IdentifySong(context.Background(), "hello it's me")
	if err != nil {
		t.Fatalf("IdentifySong returned error: %v", err)
	}
	if match.DetectedSong != "Hello by Adele" || match.Confidence != 0.9 || match.Accuracy != 0.8 {
		t.Fatalf("unexpected match %+v", match)
	}
	if client.jsonCalls != 1 {
		t.Fatalf("expected one JSON completion, got %d", client.jsonCalls)
	}
	if !strings.Contains(client.prompt, `"hello it's me"`) {
		t.Fatalf("prompt should quote the lyrics: %q", client.prompt)
	}
	if !strings.Contains(client.system, "song identification expert") {
		t.Fatalf("unexpected system prompt %q", client.system)
	}
}

func TestLLMSongIdentifierWrapsFailures(t *testing.T) {
	client := &fakeCompleter{err: errors.New("boom")}
	_, err := inference.NewLLMSongIdentifier(client).IdentifySong(context.Background(), "lyrics")
	if !errors.Is(err, services.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}

	client = &fakeCompleter{}
	if _, err := inference.NewLLMSongIdentifier(client).IdentifySong(context.Background(), "  "); err == nil {
		t.Fatal("expected blank text to fail")
	}
	if client.jsonCalls != 0 {
		t.Fatal("blank text should not reach the model")
	}
}

func TestLLMCommentatorPrompt(t *testing.T) {
	client := &fakeCompleter{response: "  \"You sang it like a dial-up modem.\"  "}
	commentator := inference.NewLLMCommentator(client)

	text, err := commentator.GenerateCommentary(context.Background(), inference.CommentaryRequest{
		Song:      "Toxic by Britney Spears",
		Accuracy:  0.456,
		Intensity: "gordon-ramsay",
		Escalation: inference.Escalation{
			SongAttempts:  2,
			TotalAttempts: 7,
			RecentRoasts:  []string{"first roast", "second roast"},
		},
	})
	if err != nil {
		t.Fatalf("GenerateCommentary returned error: %v", err)
	}
	if text != "You sang it like a dial-up modem." {
		t.Fatalf("unexpected text %q", text)
	}
	for _, want := range []string{
		`"Toxic by Britney Spears" with 46% accuracy`,
		"maximum 2 sentences",
		"Gordon Ramsay",
		"2 time(s)",
		"performance number 8",
		"- second roast",
	} {
		if !strings.Contains(client.prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, client.prompt)
		}
	}
	if !strings.Contains(client.system, "karaoke roast master") {
		t.Fatalf("unexpected system prompt %q", client.system)
	}
}

func TestLLMCommentatorFirstAttemptHasNoEscalation(t *testing.T) {
	client := &fakeCompleter{response: "ok"}
	_, err := inference.NewLLMCommentator(client).GenerateCommentary(context.Background(), inference.CommentaryRequest{
		Song:      "Hello by Adele",
		Accuracy:  1,
		Intensity: "friendly",
	})
	if err != nil {
		t.Fatalf("GenerateCommentary returned error: %v", err)
	}
	if strings.Contains(client.prompt, "persistence") || strings.Contains(client.prompt, "earlier roasts") {
		t.Fatalf("unexpected escalation lines:\n%s", client.prompt)
	}
	if !strings.Contains(client.prompt, "100% accuracy") {
		t.Fatalf("prompt missing accuracy:\n%s", client.prompt)
	}
}

func TestLLMCommentatorEmptyIsError(t *testing.T) {
	client := &fakeCompleter{response: "   "}
	_, err := inference.NewLLMCommentator(client).GenerateCommentary(context.Background(), inference.CommentaryRequest{Song: "x"})
	if !errors.Is(err, services.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

type fakeClip struct {
	text string
	err  error
	ext  string
	dir  string
}

func (f *fakeClip) TranscribeClip(_ context.Context, _ []byte, ext, workDir string) (whisperx.TranscribeResult, error) {
	f.ext, f.dir = ext, workDir
	return whisperx.TranscribeResult{Text: f.text}, f.err
}

func TestWhisperTranscriber(t *testing.T) {
	clip := &fakeClip{text: "  is this the real life  "}
	transcriber := inference.NewWhisperTranscriber(clip, "/tmp/work")

	text, err := transcriber.Transcribe(context.Background(), inference.Audio{Data: []byte{1, 2}, ContentType: "audio/webm;codecs=opus"})
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if text != "is this the real life" {
		t.Fatalf("unexpected text %q", text)
	}
	if clip.ext != "webm" || clip.dir != "/tmp/work" {
		t.Fatalf("unexpected ext/dir %q %q", clip.ext, clip.dir)
	}

	clip = &fakeClip{err: whisperx.ErrEmptyTranscript}
	text, err = inference.NewWhisperTranscriber(clip, "").Transcribe(context.Background(), inference.Audio{Data: []byte{1}})
	if err != nil || text != "" {
		t.Fatalf("silence should be an empty transcript, got %q %v", text, err)
	}

	clip = &fakeClip{err: errors.New("uvx: exit status 1")}
	_, err = inference.NewWhisperTranscriber(clip, "").Transcribe(context.Background(), inference.Audio{Data: []byte{1}})
	if !errors.Is(err, services.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}

	if _, err := inference.NewWhisperTranscriber(&fakeClip{}, "").Transcribe(context.Background(), inference.Audio{}); err == nil {
		t.Fatal("expected empty audio to fail")
	}
}

func TestExtensionFor(t *testing.T) {
	cases := map[string]string{
		"audio/wav":  "wav",
		"audio/mpeg": "mp3",
		"audio/mp3":  "mp3",
		"AUDIO/OGG":  "ogg",
		"video/mp4":  "bin",
		"":           "bin",
	}
	for input, want := range cases {
		if got := inference.ExtensionFor(input); got != want {
			t.Fatalf("ExtensionFor(%q) = %q, want %q", input, got, want)
		}
	}
}
