package main

import "strings"

// stringListFlag implements flag.Value, accumulating comma-separated
// values across possibly-repeated flag occurrences (e.g. -classpath a.jar
// -classpath b.jar,c.jar yields [a.jar b.jar c.jar]).
type stringListFlag []string

func (f *stringListFlag) String() string {
	if f == nil {
		return ""
	}
	return strings.Join(*f, ",")
}

func (f *stringListFlag) Set(s string) error {
	if s == "" {
		return nil
	}
	*f = append(*f, strings.Split(s, ",")...)
	return nil
}
