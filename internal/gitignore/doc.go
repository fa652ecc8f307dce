// Package gitignore matches paths against gitignore-syntax rules so the
// filesystem watcher can skip what the repository itself declares
// uninteresting (https://git-scm.com/docs/gitignore for the syntax).
//
// The watcher builds one Matcher per root — seeded with its own extra
// patterns, then the root .gitignore, then every nested one scoped to
// its directory — and swaps the whole Matcher when a .gitignore changes:
//
//	m := gitignore.New()
//	m.AddPattern(".maven/")
//	if err := m.AddFromFile(filepath.Join(root, ".gitignore"), ""); err != nil { ... }
//	m.AddFromFile(filepath.Join(root, "src/.gitignore"), "src")
//
//	if m.Match("src/out/bundle.js", false) {
//	    // skipped before the event reaches the debouncer
//	}
//
// Negations, rooted patterns, directory-only patterns, "**" spans, and
// the escape rules for "#", "!", and trailing spaces all follow the git
// documentation.
package gitignore
