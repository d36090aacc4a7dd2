package toolfix

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrect_Identity(t *testing.T) {
	c := New()

	tests := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "plain text", text: "The function reads a file and returns its contents."},
		{name: "lone opening tag", text: "here is <read_file> without a close"},
		{name: "lone closing tag", text: "stray </read_file> marker"},
		{name: "mismatched pair", text: "<read_file><path>a.ts</path></write_to_file>"},
		{name: "unknown tag pair", text: "<thinking>some reasoning</thinking>"},
		{name: "angle brackets in prose", text: "compare a < b and c > d"},
		{name: "already canonical", text: "<use_read_file><args><file><path>app.ts</path></file></args></use_read_file>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.text, c.Correct(tt.text))
		})
	}
}

func TestCorrect_Idempotence(t *testing.T) {
	c := New()

	tests := []string{
		"<read_file><path>/Users/x/project/app.ts</path></read_file>",
		"prefix <execute_command><command>ls -la</command></execute_command> suffix",
		"<function_calls><invoke name=\"str_replace_editor\"><parameter name=\"command\">view</parameter><parameter name=\"path\">/Users/x/project/main.go</parameter></invoke></function_calls>",
		"no markup at all",
	}

	for _, text := range tests {
		once := c.Correct(text)
		twice := c.Correct(once)
		assert.Equal(t, once, twice, "input: %s", text)
	}
}

func TestCorrect_DeprecatedTagPairs(t *testing.T) {
	c := New()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "read_file with local prefix",
			in:   "<read_file><path>/Users/x/project/app.ts</path></read_file>",
			want: "<use_read_file><args><file><path>app.ts</path></file></args></use_read_file>",
		},
		{
			name: "read_file with relative path",
			in:   "<read_file><path>src/app.ts</path></read_file>",
			want: "<use_read_file><args><file><path>src/app.ts</path></file></args></use_read_file>",
		},
		{
			name: "write_to_file keeps parameter order",
			in:   "<write_to_file><path>out.txt</path><content>hello</content></write_to_file>",
			want: "<use_write_file><args><file><path>out.txt</path><content>hello</content></file></args></use_write_file>",
		},
		{
			name: "replace_in_file",
			in:   "<replace_in_file><path>a.go</path><diff>x</diff></replace_in_file>",
			want: "<use_edit_file><args><file><path>a.go</path><diff>x</diff></file></args></use_edit_file>",
		},
		{
			name: "execute_command has no wrap key",
			in:   "<execute_command><command>go vet ./...</command></execute_command>",
			want: "<use_run_command><args><command>go vet ./...</command></args></use_run_command>",
		},
		{
			name: "list_files has no wrap key",
			in:   "<list_files><path>internal</path></list_files>",
			want: "<use_list_files><args><path>internal</path></args></use_list_files>",
		},
		{
			name: "surrounding text preserved",
			in:   "Let me check.\n<read_file><path>main.go</path></read_file>\nDone.",
			want: "Let me check.\n<use_read_file><args><file><path>main.go</path></file></args></use_read_file>\nDone.",
		},
		{
			name: "two conversions in one text",
			in:   "<list_files><path>.</path></list_files> then <read_file><path>go.mod</path></read_file>",
			want: "<use_list_files><args><path>.</path></args></use_list_files> then <use_read_file><args><file><path>go.mod</path></file></args></use_read_file>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Correct(tt.in))
		})
	}
}

func TestCorrect_Envelope(t *testing.T) {
	c := New()

	t.Run("view command", func(t *testing.T) {
		in := `<function_calls><invoke name="str_replace_editor"><parameter name="command">view</parameter><parameter name="path">/Users/x/project/main.go</parameter></invoke></function_calls>`
		want := "<use_read_file><args><file><path>main.go</path></file></args></use_read_file>"
		assert.Equal(t, want, c.Correct(in))
	})

	t.Run("create command computes line count", func(t *testing.T) {
		in := `<function_calls><invoke name="str_replace_editor"><parameter name="command">create</parameter><parameter name="path">notes.txt</parameter><parameter name="file_text">one
two
three</parameter></invoke></function_calls>`
		want := "<use_write_file><args><file><path>notes.txt</path><content>one\ntwo\nthree</content><line_count>3</line_count></file></args></use_write_file>"
		assert.Equal(t, want, c.Correct(in))
	})

	t.Run("create falls back to content parameter", func(t *testing.T) {
		in := `<function_calls><invoke name="editor"><parameter name="command">create</parameter><parameter name="path">a.txt</parameter><parameter name="content">x</parameter></invoke></function_calls>`
		want := "<use_write_file><args><file><path>a.txt</path><content>x</content><line_count>1</line_count></file></args></use_write_file>"
		assert.Equal(t, want, c.Correct(in))
	})

	t.Run("str_replace command", func(t *testing.T) {
		in := `<function_calls><invoke name="str_replace_editor"><parameter name="command">str_replace</parameter><parameter name="path">main.go</parameter><parameter name="old_str">foo</parameter><parameter name="new_str">bar</parameter></invoke></function_calls>`
		want := "<use_edit_file><args><file><path>main.go</path><old_text>foo</old_text><new_text>bar</new_text></file></args></use_edit_file>"
		assert.Equal(t, want, c.Correct(in))
	})

	t.Run("multiple invokes joined by newline", func(t *testing.T) {
		in := `<function_calls><invoke name="e"><parameter name="command">view</parameter><parameter name="path">a.go</parameter></invoke><invoke name="e"><parameter name="command">view</parameter><parameter name="path">b.go</parameter></invoke></function_calls>`
		want := "<use_read_file><args><file><path>a.go</path></file></args></use_read_file>\n" +
			"<use_read_file><args><file><path>b.go</path></file></args></use_read_file>"
		assert.Equal(t, want, c.Correct(in))
	})

	t.Run("unknown command leaves whole envelope unchanged", func(t *testing.T) {
		in := `<function_calls><invoke name="e"><parameter name="command">view</parameter><parameter name="path">a.go</parameter></invoke><invoke name="e"><parameter name="command">delete</parameter><parameter name="path">b.go</parameter></invoke></function_calls>`
		assert.Equal(t, in, c.Correct(in))
	})

	t.Run("envelope without invokes unchanged", func(t *testing.T) {
		in := "<function_calls>nothing structured here</function_calls>"
		assert.Equal(t, in, c.Correct(in))
	})
}

func TestCorrect_CustomPrefix(t *testing.T) {
	c := NewWithPrefix("/home/dev/repo/")

	in := "<read_file><path>/home/dev/repo/pkg/x.go</path></read_file>"
	want := "<use_read_file><args><file><path>pkg/x.go</path></file></args></use_read_file>"
	assert.Equal(t, want, c.Correct(in))

	// The default prefix is not special-cased.
	in = "<read_file><path>/Users/x/project/app.ts</path></read_file>"
	want = "<use_read_file><args><file><path>/Users/x/project/app.ts</path></file></args></use_read_file>"
	assert.Equal(t, want, c.Correct(in))
}

func BenchmarkCorrect(b *testing.B) {
	c := New()
	text := "Some narration before the call.\n" +
		"<read_file><path>/Users/x/project/internal/server/server.go</path></read_file>\n" +
		"And a closing remark after it."

	b.ReportAllocs()
	for b.Loop() {
		c.Correct(text)
	}
}
