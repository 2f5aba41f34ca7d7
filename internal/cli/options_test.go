package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want Options
	}{
		{
			name: "push default dir",
			args: []string{"push"},
			want: Options{Mode: ModePush, Dir: "."},
		},
		{
			name: "push explicit dir",
			args: []string{"push", "projects/site"},
			want: Options{Mode: ModePush, Dir: "projects/site"},
		},
		{
			name: "pull with flags",
			args: []string{"pull", "-C", "/srv/repos", "-v", "data"},
			want: Options{Mode: ModePull, Dir: "data", Root: "/srv/repos", Verbose: true},
		},
		{
			name: "list",
			args: []string{"list"},
			want: Options{Mode: ModeList, Dir: "."},
		},
		{
			name: "remote walrus",
			args: []string{"push", "-remote", "walrus"},
			want: Options{Mode: ModePush, Dir: ".", Remote: RemoteWalrus},
		},
		{
			name: "equals form",
			args: []string{"push", "--compression=zstd", "--root=/tmp/x"},
			want: Options{Mode: ModePush, Dir: ".", Compression: "zstd", Root: "/tmp/x"},
		},
		{
			name: "help",
			args: []string{"--help"},
			want: Options{Dir: ".", Help: true},
		},
		{
			name: "subcommand help flag",
			args: []string{"push", "-h"},
			want: Options{Mode: ModePush, Dir: ".", Help: true},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.args)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{name: "no args", args: nil},
		{name: "unknown command", args: []string{"sync"}},
		{name: "unknown flag", args: []string{"push", "--frobnicate"}},
		{name: "missing flag value", args: []string{"push", "-C"}},
		{name: "bad remote", args: []string{"push", "-remote", "ftp"}},
		{name: "list with dir", args: []string{"list", "somedir"}},
		{name: "too many dirs", args: []string{"push", "a", "b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.args)
			assert.Error(t, err)
		})
	}
}
