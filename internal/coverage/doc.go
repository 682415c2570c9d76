// Package coverage answers "what artifact is missing next?" for the idle
// scheduler and the batch CLI, walking kinds in priority order so an earlier
// kind is finished library-wide before a later one is started.
package coverage
