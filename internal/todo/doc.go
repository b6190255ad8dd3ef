// Package todo is the bundled demo application: a TodoMVC list whose
// items live in SQLite and whose views stay in sync across every
// connected browser.
//
// Writes go through Store, which publishes on these topics once the
// transaction commits:
//
//	item        any change to any item
//	item.<id>   a change to one item, including its deletion
//	item.new    an item was created
package todo
