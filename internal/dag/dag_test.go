package dag

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// build registers nodes and then wires {parent, child} edges.
func build(t *testing.T, nodes []string, edges ...[2]string) *Graph {
	t.Helper()
	g := NewGraph()
	for _, n := range nodes {
		g.AddNode(n, "table:"+n)
	}
	for _, e := range edges {
		require.NoError(t, g.AddEdge(e[0], e[1]))
	}
	return g
}

func wordpress(t *testing.T) *Graph {
	return build(t,
		[]string{"wp_users", "wp_posts", "wp_postmeta", "wp_comments", "wp_commentmeta", "wp_options"},
		[2]string{"wp_users", "wp_posts"},
		[2]string{"wp_posts", "wp_postmeta"},
		[2]string{"wp_posts", "wp_comments"},
		[2]string{"wp_users", "wp_comments"},
		[2]string{"wp_comments", "wp_commentmeta"},
	)
}

func TestGraph_Nodes(t *testing.T) {
	g := wordpress(t)
	assert.Equal(t, 6, g.Len())
	assert.Equal(t, 5, g.EdgeCount())

	data, ok := g.Node("wp_posts")
	require.True(t, ok)
	assert.Equal(t, "table:wp_posts", data)

	g.AddNode("wp_posts", "replaced")
	data, _ = g.Node("wp_posts")
	assert.Equal(t, "replaced", data)
	assert.Equal(t, []string{"wp_comments", "wp_postmeta"}, g.Children("wp_posts"), "re-adding a node keeps its edges")

	_, ok = g.Node("wp_links")
	assert.False(t, ok)
}

func TestGraph_AddEdge(t *testing.T) {
	g := build(t, []string{"a", "b"})

	assert.ErrorContains(t, g.AddEdge("a", "missing"), `unknown node "missing"`)
	assert.ErrorContains(t, g.AddEdge("missing", "a"), `unknown node "missing"`)

	var ce *CycleError
	require.ErrorAs(t, g.AddEdge("a", "a"), &ce)
	assert.Equal(t, []string{"a", "a"}, ce.Path)
	assert.Equal(t, "cycle detected: a -> a", ce.Error())

	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("a", "b"))
	assert.Equal(t, 1, g.EdgeCount())
}

func TestGraph_ParentsAndChildren(t *testing.T) {
	g := wordpress(t)
	assert.Equal(t, []string{"wp_posts", "wp_users"}, g.Parents("wp_comments"))
	assert.Equal(t, []string{"wp_comments", "wp_postmeta"}, g.Children("wp_posts"))
	assert.Empty(t, g.Parents("wp_options"))
	assert.Empty(t, g.Children("nope"))
}

func TestGraph_HasCycle(t *testing.T) {
	tests := []struct {
		name  string
		nodes []string
		edges [][2]string
		want  []string
	}{
		{
			name:  "acyclic",
			nodes: []string{"a", "b", "c"},
			edges: [][2]string{{"a", "b"}, {"b", "c"}, {"a", "c"}},
		},
		{
			name:  "two nodes",
			nodes: []string{"a", "b"},
			edges: [][2]string{{"a", "b"}, {"b", "a"}},
			want:  []string{"a", "b", "a"},
		},
		{
			name:  "cycle below an acyclic prefix",
			nodes: []string{"root", "x", "y", "z"},
			edges: [][2]string{{"root", "x"}, {"x", "y"}, {"y", "z"}, {"z", "x"}},
			want:  []string{"x", "y", "z", "x"},
		},
		{
			name:  "first cycle by name wins",
			nodes: []string{"d", "c", "b", "a"},
			edges: [][2]string{{"c", "d"}, {"d", "c"}, {"a", "b"}, {"b", "a"}},
			want:  []string{"a", "b", "a"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := build(t, tt.nodes, tt.edges...)
			found, path := g.HasCycle()
			assert.Equal(t, tt.want != nil, found)
			assert.Equal(t, tt.want, path)
		})
	}
}

func TestGraph_Levels(t *testing.T) {
	levels, err := wordpress(t).Levels()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"wp_options", "wp_users"},
		{"wp_posts"},
		{"wp_comments", "wp_postmeta"},
		{"wp_commentmeta"},
	}, levels)
}

func TestGraph_Order(t *testing.T) {
	order, err := wordpress(t).Order()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"wp_options", "wp_users", "wp_posts", "wp_comments", "wp_postmeta", "wp_commentmeta",
	}, order)

	order, err = build(t, []string{"d", "c", "b", "a"}, [2]string{"a", "b"}, [2]string{"c", "d"}).Order()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b", "d"}, order)
}

func TestGraph_OrderRejectsCycle(t *testing.T) {
	g := build(t, []string{"a", "b"}, [2]string{"a", "b"}, [2]string{"b", "a"})

	_, err := g.Order()
	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"a", "b", "a"}, ce.Path)

	_, err = g.Levels()
	assert.ErrorAs(t, err, &ce)
}

func TestGraph_Reachability(t *testing.T) {
	g := wordpress(t)

	assert.Equal(t,
		[]string{"wp_commentmeta", "wp_comments", "wp_postmeta", "wp_posts"},
		g.Descendants("wp_posts"))
	assert.Equal(t,
		[]string{"wp_commentmeta", "wp_comments", "wp_options"},
		g.Descendants("wp_comments", "wp_options", "missing"))
	assert.Empty(t, g.Descendants("missing"))

	assert.Equal(t, []string{"wp_comments", "wp_posts", "wp_users"}, g.Ancestors("wp_commentmeta"))
	assert.Empty(t, g.Ancestors("wp_users"))

	assert.Equal(t, []string{"wp_options", "wp_users"}, g.Roots())
}

func TestGraph_OrderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(t, "nodes")
		names := make([]string, n)
		g := NewGraph()
		for i := range names {
			names[i] = fmt.Sprintf("t%02d", rapid.IntRange(0, 99).Draw(t, "name"))
			g.AddNode(names[i], nil)
		}
		// edges only run from lower to higher index, so the graph stays acyclic
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if names[i] != names[j] && rapid.Bool().Draw(t, "edge") {
					_ = g.AddEdge(names[i], names[j])
				}
			}
		}
		if found, path := g.HasCycle(); found {
			// duplicate names can fold two indices into one node and close a loop
			if path[0] != path[len(path)-1] {
				t.Fatalf("cycle path is not closed: %v", path)
			}
			return
		}

		order, err := g.Order()
		if err != nil {
			t.Fatalf("order: %v", err)
		}
		if len(order) != g.Len() {
			t.Fatalf("order has %d of %d nodes", len(order), g.Len())
		}
		pos := make(map[string]int, len(order))
		for i, id := range order {
			pos[id] = i
		}
		for _, id := range order {
			for _, child := range g.Children(id) {
				if pos[id] >= pos[child] {
					t.Fatalf("%s sorted after its dependent %s in %v", id, child, order)
				}
			}
		}
	})
}
