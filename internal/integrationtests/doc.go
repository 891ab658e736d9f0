// Package integrationtests runs complete documents through the application.
package integrationtests
