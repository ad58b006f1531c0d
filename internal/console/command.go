// Package console parses operator commands and carries them to the
// planner loop through a mailbox.
package console

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownCommand is returned by Parse for an unrecognized verb.
var ErrUnknownCommand = errors.New("unknown command")

// Kind identifies a command.
type Kind uint8

const (
	Explore Kind = iota + 1
	ExploreToward
	Pause
	Resume
	Step
	Goal
	SetPose
	Left
	Right
	Straight
	Save
	Load
	ClearBlockages
	Show
	Quit
)

var kindNames = map[Kind]string{
	Explore:        "explore",
	ExploreToward:  "explore-toward",
	Pause:          "pause",
	Resume:         "resume",
	Step:           "step",
	Goal:           "goal",
	SetPose:        "pose",
	Left:           "left",
	Right:          "right",
	Straight:       "straight",
	Save:           "save",
	Load:           "load",
	ClearBlockages: "clear-blockages",
	Show:           "show",
	Quit:           "quit",
}

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, n := range kindNames {
		m[n] = k
	}
	return m
}()

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Command is one operator request. X, Y and Heading are set for goal,
// pose and explore-toward; Name for save and load.
type Command struct {
	Kind    Kind
	X, Y    int
	Heading int
	Name    string
	// Source names the producer, e.g. "stdin", "serial" or "http".
	Source string
}

func (c Command) String() string {
	switch c.Kind {
	case Goal, ExploreToward:
		return fmt.Sprintf("%s %d %d", c.Kind, c.X, c.Y)
	case SetPose:
		return fmt.Sprintf("%s %d %d %d", c.Kind, c.X, c.Y, c.Heading)
	case Save, Load:
		return fmt.Sprintf("%s %s", c.Kind, c.Name)
	default:
		return c.Kind.String()
	}
}

// Parse reads a command line such as "goal 2 -1". Verbs are case
// insensitive; "g" and "q" are accepted as short forms of goal and quit.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty line: %w", ErrUnknownCommand)
	}
	verb := strings.ToLower(fields[0])
	switch verb {
	case "g":
		verb = "goal"
	case "q", "exit":
		verb = "quit"
	}
	kind, ok := kindsByName[verb]
	if !ok {
		return Command{}, fmt.Errorf("%q: %w", fields[0], ErrUnknownCommand)
	}
	args := fields[1:]
	cmd := Command{Kind: kind}

	var err error
	switch kind {
	case Goal, ExploreToward:
		if err = wantArgs(args, 2); err == nil {
			cmd.X, cmd.Y, err = parseXY(args)
		}
	case SetPose:
		if err = wantArgs(args, 3); err == nil {
			cmd.X, cmd.Y, err = parseXY(args)
		}
		if err == nil {
			cmd.Heading, err = strconv.Atoi(args[2])
			if err == nil && (cmd.Heading < 0 || cmd.Heading > 7) {
				err = fmt.Errorf("heading %d out of range [0,7]", cmd.Heading)
			}
		}
	case Save, Load:
		if err = wantArgs(args, 1); err == nil {
			cmd.Name = args[0]
		}
	default:
		err = wantArgs(args, 0)
	}
	if err != nil {
		return Command{}, fmt.Errorf("%s: %w", kind, err)
	}
	return cmd, nil
}

func wantArgs(args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("want %d arguments, got %d", n, len(args))
	}
	return nil
}

func parseXY(args []string) (int, int, error) {
	x, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad x %q", args[0])
	}
	y, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad y %q", args[1])
	}
	return x, y, nil
}

// Help lists the accepted command forms.
const Help = `commands:
  explore                 explore until every street is known
  explore-toward X Y      explore, preferring streets toward (X,Y)
  goal X Y                drive to intersection (X,Y)
  pose X Y H              declare the robot's intersection and heading
  left | right | straight one manual move
  pause | resume | step   suspend, continue, or run one unit of work
  save NAME | load NAME   persist or restore the map
  clear-blockages         forget every blocked street
  show                    print pose, goal and map summary
  quit`
