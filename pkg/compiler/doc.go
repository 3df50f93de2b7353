/*
Package compiler translates Sluice templates into JavaScript render functions.

A template is markup with five tag kinds:

	{{ expr }}               output the value of a JavaScript expression
	{% code %}               pass statements through verbatim
	{# text #}               comment, dropped
	{$ name $}               call a zero-argument function in scope
	{= name(args)
	   body =}               register a helper that renders body to a string

Leading "import <name>" and "extends <name>" lines compose templates. Imports
are rendered before the importing body; extends inlines the parent's whole
scaffold and appends the child's markup to it. Every import must precede the
extends line.

Each compiled Unit carries a content-addressed version and a transitive
dependency map. The Compiler compiles every name at most once per process
and records dependency maps in a VersionCache, which can be pre-seeded.
*/
package compiler
