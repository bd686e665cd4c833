// Package dag holds the ordering graph used to sequence mod loading. Nodes are
// mod namespaces; an edge from A to B means B must load after A. The graph
// remembers insertion order so that topological sorts are deterministic and
// independent nodes keep the order in which they were added.
package dag
