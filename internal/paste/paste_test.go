package paste

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(kv map[string]string) func(string) string {
	return func(k string) string { return kv[k] }
}

func names(cmds []Command) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.Name
	}
	return out
}

func TestCandidates(t *testing.T) {
	tests := []struct {
		goos string
		env  map[string]string
		want []string
	}{
		{"darwin", nil, []string{"osascript"}},
		{"windows", nil, []string{"powershell"}},
		{"linux", map[string]string{"DISPLAY": ":0"}, []string{"xdotool"}},
		{"linux", map[string]string{"WAYLAND_DISPLAY": "wayland-0"}, []string{"wtype", "ydotool"}},
		{"linux", map[string]string{"WAYLAND_DISPLAY": "wayland-0", "DISPLAY": ":0"}, []string{"wtype", "ydotool", "xdotool"}},
		{"freebsd", nil, []string{"xdotool"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, names(Candidates(tt.goos, env(tt.env))), "%s %v", tt.goos, tt.env)
	}
}

type fakeExec struct {
	installed map[string]bool
	ran       []string
	err       error
	out       string
}

func (f *fakeExec) lookPath(name string) (string, error) {
	if f.installed[name] {
		return "/usr/bin/" + name, nil
	}
	return "", exec.ErrNotFound
}

func (f *fakeExec) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.ran = append(f.ran, Command{Name: name, Args: args}.String())
	return []byte(f.out), f.err
}

func newFakePaster(f *fakeExec) *Paster {
	return New(
		WithCommands(Candidates("linux", env(map[string]string{"WAYLAND_DISPLAY": "w", "DISPLAY": ":0"}))...),
		WithLookPath(f.lookPath),
		WithRunner(f.run),
	)
}

func TestSimulatePasteUsesFirstInstalledTool(t *testing.T) {
	f := &fakeExec{installed: map[string]bool{"ydotool": true, "xdotool": true}}
	require.NoError(t, newFakePaster(f).SimulatePaste(context.Background()))
	assert.Equal(t, []string{"ydotool key 29:1 47:1 47:0 29:0"}, f.ran)
}

func TestSimulatePasteReportsToolFailure(t *testing.T) {
	f := &fakeExec{
		installed: map[string]bool{"wtype": true, "xdotool": true},
		err:       errors.New("exit status 1"),
		out:       "compositor does not support virtual keyboard\n",
	}
	err := newFakePaster(f).SimulatePaste(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paste via wtype")
	assert.Contains(t, err.Error(), "virtual keyboard")
	assert.Len(t, f.ran, 1)
}

func TestSimulatePasteUnsupported(t *testing.T) {
	f := &fakeExec{}
	p := newFakePaster(f)
	assert.ErrorIs(t, p.SimulatePaste(context.Background()), ErrUnsupported)
	_, err := p.Tool()
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Empty(t, f.ran)
}
