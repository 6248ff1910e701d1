// Package media loads the episode library: show metadata parsing, video
// file discovery, duration probing via ffprobe, and the skip-range math
// that keeps generated clips out of intros and credits.
package media
