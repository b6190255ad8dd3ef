// Package render provides the rendering and diff collaborators used by
// the component tree.
//
// TemplateRenderer executes html/template templates against component
// values and wraps the output in the component's custom element:
//
//	<x-todo-item id="item-3" state="eyJ...">...</x-todo-item>
//
// or, for a component that customizes a built-in element,
//
//	<li is="x-todo-item" id="item-3" state="eyJ...">...</li>
//
// The state attribute is the signed envelope of the component's
// serialized construction arguments. The client hands it back on join.
//
// Templates may embed child components with the component function:
//
//	{{component "x-todo-item" (printf "item-%d" .ID) "item" . "showing" $.Showing}}
//
// TextDiffer compares two outputs and produces a compact edit script:
// a JSON array where a positive integer keeps that many runes, a negative
// integer deletes that many runes and a string is inserted verbatim.
// Apply replays a script against the previous output.
package render
