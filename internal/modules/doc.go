/*
Package modules loads the two binary modules into their runtimes and wires
the bridge between them.

# Images

A module image is JavaScript program source. It is parsed once with
goja.Compile and instantiated with RunProgram inside its own runtime. Images
come from a Source: a local file, an http(s) URL fetched with retries, or
in-memory bytes.

# Bring-up order

Loader.Load performs, exactly once:

 1. LoadPrimary: instantiate the primary module in the sandbox runtime,
    install the panic hook, check the setupMixFetch / mixFetch /
    disconnectMixFetch exports.
 2. LoadSecondary: instantiate the secondary module in its own runtime,
    check its connection exports, and start main() without awaiting it.
 3. InstallBridge: publish the secondary module's primitives (or an injected
    bridge.Connector) into the primary runtime.

Calling a step out of order returns ErrBridgeOrder; repeating one returns
ErrAlreadyLoaded. Any failure aborts bring-up and Load closes every runtime
it created.
*/
package modules
