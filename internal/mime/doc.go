/*
Package mime decides how a fetched response body crosses the sandbox
boundary.

A RuleSet maps content types to a Strategy. Matchers are exact media types,
doublestar globs ("image/*", "application/*+json") or regular expressions
("re:^text/.+" or "/^text/.+/"). Rules are tested in order against the media
type without parameters, lower-cased; the first match wins.

Decoding follows four steps:

 1. No content type and no body: empty body, nothing is read.
 2. No content type but a body: the rule set's fallback strategy.
 3. A content type: the strategy of the first matching rule.
 4. No rule matches: the fallback strategy when there is a body, otherwise
    an empty body.

Blob bodies are handed to a Stager and only a reference crosses the
boundary.
*/
package mime
