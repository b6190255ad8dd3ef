package todo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vango-dev/reactor/pkg/component"
	"github.com/vango-dev/reactor/pkg/topic"
)

// Filters accepted by the show handler.
const (
	ShowAll       = "all"
	ShowActive    = "active"
	ShowCompleted = "completed"
)

// Component tags.
const (
	ListTag    = "x-todo-list"
	CounterTag = "x-todo-counter"
	ItemTag    = "x-todo-item"
)

// ListID is the id the page mounts the list under.
const ListID = "todo-list"

// Register adds the todo components, bound to store, to reg.
func Register(reg *component.Registry, store *Store) error {
	for _, def := range []component.Definition{
		component.Define(ListTag, "section", func() *List { return &List{store: store} }, listHandlers),
		component.Define(CounterTag, "div", func() *Counter { return &Counter{store: store} }, nil),
		component.Define(ItemTag, "li", func() *ItemView { return &ItemView{store: store} }, itemHandlers),
	} {
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func normalizeShowing(s string) string {
	switch s {
	case ShowActive, ShowCompleted:
		return s
	default:
		return ShowAll
	}
}

// List is the whole application: the input, the items and the footer.
type List struct {
	component.Base
	store *Store

	NewItem string
	Showing string

	Items        []Item
	AllCompleted bool
	HasCompleted bool
}

func (l *List) TemplateName() string { return "list.html" }

func (l *List) Mount(ctx *component.Context, args component.Args) error {
	l.Showing = normalizeShowing(args.String("showing", ShowAll))
	l.NewItem = args.String("new_item", "")
	ctx.Subscribe(TopicNew)
	ctx.Subscribe(TopicItems)
	return l.refresh(ctx)
}

func (l *List) Serialize() component.Args {
	return component.Args{"id": l.ID(), "new_item": l.NewItem, "showing": l.Showing}
}

func (l *List) Update(ctx *component.Context, ev topic.Event) error {
	return l.refresh(ctx)
}

func (l *List) refresh(ctx *component.Context) error {
	items, err := l.store.List(ctx.Context())
	if err != nil {
		return err
	}
	l.Items = items
	completed := 0
	for _, it := range items {
		if it.Completed {
			completed++
		}
	}
	l.AllCompleted = len(items) > 0 && completed == len(items)
	l.HasCompleted = completed > 0
	return nil
}

// ItemID is the component id of the view of item id.
func ItemID(id int64) string {
	return "item-" + strconv.FormatInt(id, 10)
}

var listHandlers = map[string]func(*List, *component.Context, component.Args) error{
	"add": func(l *List, ctx *component.Context, args component.Args) error {
		text := strings.TrimSpace(args.String("new_item", ""))
		if text == "" {
			l.NewItem = ""
			return nil
		}
		if _, err := l.store.Create(ctx.Context(), text); err != nil {
			return err
		}
		l.NewItem = ""
		return l.refresh(ctx)
	},
	"show": func(l *List, ctx *component.Context, args component.Args) error {
		l.Showing = normalizeShowing(args.String("showing", ShowAll))
		// Item views already mounted keep their own state, so the filter is
		// pushed to them before the list renders them again.
		for _, it := range l.Items {
			c, err := ctx.Child(ItemTag, ItemID(it.ID), component.Args{"item": it.ID, "showing": l.Showing})
			if errors.Is(err, component.ErrDestroyed) {
				continue
			}
			if err != nil {
				return err
			}
			if v, ok := c.(*ItemView); ok {
				v.Showing = l.Showing
			}
		}
		return nil
	},
	"toggle_all": func(l *List, ctx *component.Context, args component.Args) error {
		if _, err := l.store.SetAllCompleted(ctx.Context(), args.Bool("toggle_all", false)); err != nil {
			return err
		}
		return l.refresh(ctx)
	},
	"clear_completed": func(l *List, ctx *component.Context, args component.Args) error {
		if _, err := l.store.ClearCompleted(ctx.Context()); err != nil {
			return err
		}
		return l.refresh(ctx)
	},
}

// Counter shows how many items are left.
type Counter struct {
	component.Base
	store *Store

	Counts Counts
}

func (c *Counter) TemplateName() string { return "counter.html" }

func (c *Counter) Mount(ctx *component.Context, args component.Args) error {
	ctx.Subscribe(TopicItems)
	return c.refresh(ctx)
}

func (c *Counter) Update(ctx *component.Context, ev topic.Event) error {
	return c.refresh(ctx)
}

func (c *Counter) refresh(ctx *component.Context) error {
	counts, err := c.store.Counts(ctx.Context())
	if err != nil {
		return err
	}
	c.Counts = counts
	return nil
}

// ItemView renders one item. It removes itself when its row is gone.
type ItemView struct {
	component.Base
	store *Store

	Item    Item
	Editing bool
	Showing string
}

func (v *ItemView) TemplateName() string { return "item.html" }

func (v *ItemView) Mount(ctx *component.Context, args component.Args) error {
	v.Editing = args.Bool("editing", false)
	v.Showing = normalizeShowing(args.String("showing", ShowAll))

	id := int64(args.Int("item", 0))
	if id == 0 {
		n, err := strconv.ParseInt(strings.TrimPrefix(v.ID(), "item-"), 10, 64)
		if err != nil {
			ctx.Destroy()
			return nil
		}
		id = n
	}

	item, err := v.store.Get(ctx.Context(), id)
	if errors.Is(err, ErrNotFound) {
		ctx.Destroy()
		return nil
	}
	if err != nil {
		return err
	}
	v.Item = item
	ctx.Subscribe(ItemTopic(id))
	return nil
}

func (v *ItemView) Serialize() component.Args {
	return component.Args{
		"id":      v.ID(),
		"item":    v.Item.ID,
		"editing": v.Editing,
		"showing": v.Showing,
	}
}

func (v *ItemView) Update(ctx *component.Context, ev topic.Event) error {
	return v.reload(ctx)
}

func (v *ItemView) reload(ctx *component.Context) error {
	item, err := v.store.Get(ctx.Context(), v.Item.ID)
	if errors.Is(err, ErrNotFound) {
		ctx.Destroy()
		return nil
	}
	if err != nil {
		return err
	}
	v.Item = item
	return nil
}

// Visible reports whether the item passes the current filter.
func (v *ItemView) Visible() bool {
	switch v.Showing {
	case ShowCompleted:
		return v.Item.Completed
	case ShowActive:
		return !v.Item.Completed
	default:
		return true
	}
}

var itemHandlers = map[string]func(*ItemView, *component.Context, component.Args) error{
	"destroy": func(v *ItemView, ctx *component.Context, args component.Args) error {
		if err := v.store.Delete(ctx.Context(), v.Item.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		ctx.Destroy()
		return nil
	},
	"completed": func(v *ItemView, ctx *component.Context, args component.Args) error {
		if err := v.store.SetCompleted(ctx.Context(), v.Item.ID, args.Bool("completed", false)); err != nil {
			return err
		}
		return v.reload(ctx)
	},
	"toggle_editing": func(v *ItemView, ctx *component.Context, args component.Args) error {
		if !v.Item.Completed {
			v.Editing = !v.Editing
		}
		return nil
	},
	"save": func(v *ItemView, ctx *component.Context, args component.Args) error {
		text := strings.TrimSpace(args.String("text", v.Item.Text))
		if text == "" {
			return fmt.Errorf("todo: item %d: empty text", v.Item.ID)
		}
		if err := v.store.SetText(ctx.Context(), v.Item.ID, text); err != nil {
			return err
		}
		v.Editing = false
		return v.reload(ctx)
	},
}
