// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Id identifies a catalog entry.
type Id int

const (
	LoaderCompileFailedId Id = iota + 1
	LoaderExecuteFailedId
	ValueNotJSONSafeId
	PromiseNotSettledId
	CommentConfigInvalidId
	ConfigLoadFailedId
	EntryNotFoundId
)

type MarkdownMsg string

type HttpLink string

// Issue is a long-form, markdown explanation of a failure class.
type Issue struct {
	id       Id
	mdMsg    MarkdownMsg
	docLinks []HttpLink
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

// Markdown returns the message with a "See also" list appended when the
// issue carries links.
func (i *Issue) Markdown() string {
	var b strings.Builder
	b.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 {
		b.WriteString("\n\n## See also\n")
		for _, link := range i.docLinks {
			b.WriteString("- <")
			b.WriteString(string(link))
			b.WriteString(">\n")
		}
	}
	return b.String()
}

// Render renders the issue for a terminal with the given glamour style
// ("dark", "light", "notty", "auto" or a JSON style path).
func (i *Issue) Render(stylePath string) (string, error) {
	return render(i.Markdown(), stylePath)
}

var (
	render = glamour.Render

	loaderCompileFailedIssue = &Issue{
		id: LoaderCompileFailedId,
		mdMsg: `
# The data loader could not be bundled

esdata builds every data loader on its own with esbuild before running it.
The build reported the errors shown above.

## Things you can try
- Fix the syntax or import errors esbuild points at
- Make sure every imported package is installed next to the loader
- Top-level ` + "`await`" + ` is not supported; export a promise instead:
~~~ts
export default (async () => {
  const res = await load()
  return res
})()
~~~`,
		docLinks: []HttpLink{"https://esbuild.github.io/api/#build"},
	}

	loaderExecuteFailedIssue = &Issue{
		id: LoaderExecuteFailedId,
		mdMsg: `
# The data loader threw while running

The bundled loader was executed at build time and raised an exception.

## Things you can try
- Read the JavaScript stack trace above
- Remember the loader runs at build time, not in the browser
- Only ` + "`fs`" + `, ` + "`path`" + `, ` + "`url`" + ` and the node globals are available natively;
  other node built-ins stay external and cannot be required`,
	}

	valueNotJSONSafeIssue = &Issue{
		id: ValueNotJSONSafeId,
		mdMsg: `
# An exported value cannot be embedded

Exports of a data loader are serialized to JSON and inlined into the bundle.
Functions, symbols, ` + "`undefined`" + `, BigInt, NaN and class instances cannot
survive that round trip.

## Things you can try
- Convert class instances to plain objects
- Give custom classes a ` + "`toJSON()`" + ` method
- Convert BigInt values to strings`,
	}

	promiseNotSettledIssue = &Issue{
		id: PromiseNotSettledId,
		mdMsg: `
# An exported promise did not resolve

A promise export was rejected, or it never settled after every pending
timer and job had run.

## Things you can try
- Handle rejections inside the loader
- Make sure the promise does not wait on an event that never fires`,
	}

	commentConfigInvalidIssue = &Issue{
		id: CommentConfigInvalidId,
		mdMsg: `
# The esdata comment is malformed

The ` + "`/* esdata ... */`" + ` comment accepts relaxed JSON with two keys:

~~~js
/* esdata {
  dependencies: ['./content/*.md'],
  watch: './extra.json',
} */
~~~

## Things you can try
- Remove unknown keys
- Use a string or a list of strings for each key
- Avoid ` + "`**/`" + ` inside the comment, since ` + "`*/`" + ` ends it
- Set ` + "`comment_config_policy: \"lenient\"`" + ` to log and ignore bad comments`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# The project configuration could not be loaded

esdata reads ` + "`esdata.cue`" + ` from the --config path, the user config
directory or the working directory.

## Things you can try
- Run ` + "`esdata config show`" + ` to see the effective configuration
- Check the field names against the schema:
~~~cue
root: "."
ignore: ["**/fixtures/**"]
comment_config_policy: "strict"
~~~`,
		docLinks: []HttpLink{"https://cuelang.org/docs/"},
	}

	entryNotFoundIssue = &Issue{
		id: EntryNotFoundId,
		mdMsg: `
# The entry point does not exist

## Things you can try
- Check the path passed on the command line
- Paths are resolved against the configured root`,
	}

	issues = map[Id]*Issue{
		loaderCompileFailedIssue.Id():  loaderCompileFailedIssue,
		loaderExecuteFailedIssue.Id():  loaderExecuteFailedIssue,
		valueNotJSONSafeIssue.Id():     valueNotJSONSafeIssue,
		promiseNotSettledIssue.Id():    promiseNotSettledIssue,
		commentConfigInvalidIssue.Id(): commentConfigInvalidIssue,
		configLoadFailedIssue.Id():     configLoadFailedIssue,
		entryNotFoundIssue.Id():        entryNotFoundIssue,
	}
)

// Values returns every catalog entry ordered by Id.
func Values() []*Issue {
	return slices.SortedFunc(maps.Values(issues), func(a, b *Issue) int {
		return int(a.id) - int(b.id)
	})
}

// Get returns the entry for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
