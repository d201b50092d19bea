package main_test

import (
	"path/filepath"
	"testing"

	"github.com/containerd/nerdctl/mod/tigron/expect"
	"github.com/containerd/nerdctl/mod/tigron/test"

	"github.com/farcloser/agar/pkg/agar"

	"github.com/farcloser/peaq/internal/testutils"
)

func TestCompareCLI(t *testing.T) {
	dir := t.TempDir()
	reference := filepath.Join(dir, "reference.wav")
	degraded := filepath.Join(dir, "degraded.wav")
	mono := filepath.Join(dir, "mono.wav")

	if err := testutils.WriteWAV(reference, testutils.Tone(2, 0.4, 0), 2); err != nil {
		t.Fatal(err)
	}

	if err := testutils.WriteWAV(degraded, testutils.Tone(2, 0.4, 0.05), 2); err != nil {
		t.Fatal(err)
	}

	if err := testutils.WriteWAV(mono, testutils.Tone(1, 0.4, 0), 1); err != nil {
		t.Fatal(err)
	}

	testCase := testutils.Setup()

	testCase.SubTests = []*test.Case{
		{
			Description: "compare without arguments fails",
			Command:     test.Command("compare"),
			Expected:    test.Expects(expect.ExitCodeGenericFail, nil, nil),
		},
		{
			Description: "compare nonexistent file fails",
			Command:     test.Command("compare", "/nonexistent/path/file.flac", reference),
			Expected:    test.Expects(expect.ExitCodeGenericFail, nil, nil),
		},
		{
			Description: "compare with unknown mode fails",
			Command:     test.Command("compare", "--mode", "expert", reference, reference),
			Expected:    test.Expects(expect.ExitCodeGenericFail, nil, nil),
		},
		{
			Description: "compare mono against stereo fails",
			Command:     test.Command("compare", mono, reference),
			Expected:    test.Expects(expect.ExitCodeGenericFail, nil, nil),
		},
		{
			Description: "reference against itself is imperceptible",
			Command:     test.Command("compare", "--clamp-movs", reference, reference),
			Expected: func(_ test.Data, _ test.Helpers) *test.Expected {
				return &test.Expected{
					ExitCode: expect.ExitCodeSuccess,
					Output: expect.All(
						expectGrade("imperceptible"),
						expectContains("mode: basic"),
						expectContains("odg:"),
					),
				}
			},
		},
		{
			Description: "advanced mode on a noisy copy",
			Command:     test.Command("compare", "--mode", "advanced", "--slope-filter", "swapped", reference, degraded),
			Expected: func(_ test.Data, _ test.Helpers) *test.Expected {
				return &test.Expected{
					ExitCode: expect.ExitCodeSuccess,
					Output: expect.All(
						expectContains("mode: advanced"),
						expectContains("distortion_index:"),
					),
				}
			},
		},
		{
			Description: "debug output lists the model output variables",
			Command:     test.Command("compare", "--debug", "--format", "json", reference, degraded),
			Expected: func(_ test.Data, _ test.Helpers) *test.Expected {
				return &test.Expected{
					ExitCode: expect.ExitCodeSuccess,
					Output: expect.All(
						expectContains("RmsNoiseLoudB"),
						expectContains("ADBB"),
					),
				}
			},
		},
		{
			Description: "decoded files go through ffmpeg",
			Setup: func(data test.Data, helpers test.Helpers) {
				data.Labels().Set("file", agar.Genuine16bit44k(data, helpers))
			},
			Command: func(data test.Data, helpers test.Helpers) test.TestableCommand {
				return helpers.Command("compare", "--clamp-movs", data.Labels().Get("file"), data.Labels().Get("file"))
			},
			Expected: func(_ test.Data, _ test.Helpers) *test.Expected {
				return &test.Expected{
					ExitCode: expect.ExitCodeSuccess,
					Output:   expectGrade("imperceptible"),
				}
			},
		},
	}

	testCase.Run(t)
}
