// Package wgconf parses wg-quick style INI profiles into tunnel configs.
package wgconf
